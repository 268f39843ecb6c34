package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/awslabs/aws-lambda-go-api-proxy/core"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/google/uuid"
)

const (
	correlationHeader = "X-Correlation-Id"
	requestIDHeader   = "X-Request-Id"
)

// Handler adapts API Gateway proxy events to the HTTP router, so the Lambda
// deployment serves exactly the same routes as the standalone server.
type Handler struct {
	adapter *httpadapter.HandlerAdapter
}

func NewHandler(next http.Handler) (*Handler, error) {
	if next == nil {
		return nil, errors.New("handler: http handler must not be nil")
	}
	return &Handler{adapter: httpadapter.New(withSourceIP(next))}, nil
}

func (h *Handler) Handle(ctx context.Context, ev events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := headerValue(ev, correlationHeader)
	if correlationID == "" {
		correlationID = newCorrelationID()
	}
	ev = withHeader(ev, correlationHeader, correlationID)
	if headerValue(ev, requestIDHeader) == "" {
		ev = withHeader(ev, requestIDHeader, correlationID)
	}

	resp, err := h.adapter.ProxyWithContext(ctx, ev)
	if err != nil {
		resp = events.APIGatewayProxyResponse{
			StatusCode: http.StatusBadRequest,
			MultiValueHeaders: map[string][]string{
				"Content-Type": {"application/json"},
			},
			Body: `{"error":"INVALID_INPUT","message":"Invalid request."}`,
		}
	}
	if resp.MultiValueHeaders == nil {
		resp.MultiValueHeaders = make(map[string][]string, 1)
	}
	resp.MultiValueHeaders[correlationHeader] = []string{correlationID}
	return resp, nil
}

// withSourceIP keys the request on the caller address API Gateway observed.
func withSourceIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rc, ok := core.GetAPIGatewayContextFromContext(r.Context()); ok && rc.Identity.SourceIP != "" {
			r.RemoteAddr = rc.Identity.SourceIP
		}
		next.ServeHTTP(w, r)
	})
}

func headerValue(ev events.APIGatewayProxyRequest, name string) string {
	for k, vs := range ev.MultiValueHeaders {
		if strings.EqualFold(k, name) && len(vs) > 0 && vs[0] != "" {
			return vs[0]
		}
	}
	for k, v := range ev.Headers {
		if strings.EqualFold(k, name) && v != "" {
			return v
		}
	}
	return ""
}

// withHeader sets name on copies of both header maps, dropping any
// differently cased duplicates.
func withHeader(ev events.APIGatewayProxyRequest, name, value string) events.APIGatewayProxyRequest {
	headers := make(map[string]string, len(ev.Headers)+1)
	for k, v := range ev.Headers {
		if !strings.EqualFold(k, name) {
			headers[k] = v
		}
	}
	headers[name] = value
	ev.Headers = headers

	if ev.MultiValueHeaders != nil {
		multi := make(map[string][]string, len(ev.MultiValueHeaders)+1)
		for k, vs := range ev.MultiValueHeaders {
			if !strings.EqualFold(k, name) {
				multi[k] = vs
			}
		}
		multi[name] = []string{value}
		ev.MultiValueHeaders = multi
	}
	return ev
}

var newCorrelationID = func() string {
	return uuid.NewString()
}
