package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"

	"shop-assistant/internal/domain"
	"shop-assistant/internal/httpapi"
	"shop-assistant/internal/ratelimit"
	"shop-assistant/internal/usecase"
)

type stubChat struct {
	in  usecase.ChatInput
	out usecase.ChatOutput
	err error
}

func (s *stubChat) SendTurn(_ context.Context, in usecase.ChatInput) (usecase.ChatOutput, error) {
	s.in = in
	return s.out, s.err
}

type stubReviews struct{}

func (stubReviews) ListProducts(context.Context) ([]domain.Product, error) {
	return []domain.Product{{ID: 1, Name: "Trailblazer", Price: 1299}}, nil
}

func (stubReviews) GetReviewsForProduct(context.Context, int) (usecase.ProductReviews, error) {
	return usecase.ProductReviews{Reviews: []domain.Review{}}, nil
}

func (stubReviews) Summarize(context.Context, int) (usecase.SummaryOutput, error) {
	return usecase.SummaryOutput{}, &usecase.Error{Code: usecase.ErrorNoContent, Reason: "no_reviews"}
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func newRouterHandler(t *testing.T, chat *stubChat, chatMax int) *Handler {
	t.Helper()
	l, err := ratelimit.New(map[ratelimit.Tier]ratelimit.Quota{
		ratelimit.TierChat:      {Max: chatMax, Window: time.Minute, Message: ratelimit.MessageChat},
		ratelimit.TierSummarize: {Max: 5, Window: time.Minute, Message: ratelimit.MessageSummarize},
		ratelimit.TierAPI:       {Max: 100, Window: time.Minute, Message: ratelimit.MessageAPI},
	})
	require.NoError(t, err)
	srv, err := httpapi.New(chat, stubReviews{}, httpapi.Options{Limiter: l})
	require.NoError(t, err)
	h, err := NewHandler(srv.Router())
	require.NoError(t, err)
	return h
}

func makeEvent(method, path, body string) events.APIGatewayProxyRequest {
	ev := events.APIGatewayProxyRequest{
		HTTPMethod: method,
		Path:       path,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       body,
	}
	ev.RequestContext.Identity.SourceIP = "198.51.100.7"
	return ev
}

func parseBody[T any](t *testing.T, body string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(body), &v))
	return v
}

// header reads a response header the way API Gateway merges the two maps.
func header(resp events.APIGatewayProxyResponse, name string) string {
	if vs := resp.MultiValueHeaders[name]; len(vs) > 0 {
		return vs[0]
	}
	return resp.Headers[name]
}

func TestNewHandler_ValidatesDependency(t *testing.T) {
	_, err := NewHandler(nil)
	require.Error(t, err)
}

func TestHandle_ChatHappyPath(t *testing.T) {
	chat := &stubChat{out: usecase.ChatOutput{Message: "hello", ConversationID: "conv-1"}}
	h := newRouterHandler(t, chat, 10)

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/api/chat", `{"prompt":"Do you fit bikes?","conversationId":"conv-1"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, usecase.ChatInput{Prompt: "Do you fit bikes?", ConversationID: "conv-1"}, chat.in)

	out := parseBody[map[string]string](t, resp.Body)
	require.Equal(t, "hello", out["message"])
	require.Equal(t, "conv-1", out["conversationId"])
	require.NotEmpty(t, header(resp, "X-Correlation-Id"))
	require.Equal(t, "10", header(resp, "Ratelimit-Limit"))
}

func TestHandle_RateLimitKeyedBySourceIP(t *testing.T) {
	h := newRouterHandler(t, &stubChat{out: usecase.ChatOutput{Message: "ok"}}, 1)

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/api/chat", `{"prompt":"hi"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = h.Handle(context.Background(), makeEvent(http.MethodPost, "/api/chat", `{"prompt":"hi"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.Equal(t, ratelimit.MessageChat, parseBody[errorResponse](t, resp.Body).Message)

	other := makeEvent(http.MethodPost, "/api/chat", `{"prompt":"hi"}`)
	other.RequestContext.Identity.SourceIP = "198.51.100.8"
	resp, err = h.Handle(context.Background(), other)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandle_MapsUseCaseErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   usecase.ErrorCode
	}{
		{"invalid input", &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "empty_prompt"}, http.StatusBadRequest, usecase.ErrorInvalidInput},
		{"rate limited", &usecase.Error{Code: usecase.ErrorRateLimited, Reason: "chat_provider_rate_limited"}, http.StatusTooManyRequests, usecase.ErrorRateLimited},
		{"upstream", &usecase.Error{Code: usecase.ErrorUpstream, Reason: "chat_generation_failed"}, http.StatusBadGateway, usecase.ErrorUpstream},
		{"internal", &usecase.Error{Code: usecase.ErrorInternal, Reason: "unexpected"}, http.StatusInternalServerError, usecase.ErrorInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newRouterHandler(t, &stubChat{err: tc.err}, 10)
			resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/api/chat", `{"prompt":"hi"}`))
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)
			require.Equal(t, string(tc.code), parseBody[errorResponse](t, resp.Body).Error)
		})
	}
}

func TestHandle_SummarizeWithoutReviews(t *testing.T) {
	h := newRouterHandler(t, &stubChat{}, 10)
	resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/api/products/2/reviews/summarize", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, string(usecase.ErrorNoContent), parseBody[errorResponse](t, resp.Body).Error)
}

func TestHandle_UsesProvidedCorrelationID_CaseInsensitive(t *testing.T) {
	h := newRouterHandler(t, &stubChat{}, 10)

	event := makeEvent(http.MethodGet, "/api/products", "")
	event.Headers["x-correlation-id"] = "corr-123"
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "corr-123", header(resp, "X-Correlation-Id"))
	require.JSONEq(t, `[{"id":1,"name":"Trailblazer","price":1299}]`, resp.Body)
}

func TestHandle_RequestTranslation(t *testing.T) {
	var got *http.Request
	var gotBody string
	h, err := NewHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
		w.Header().Add("Set-Cookie", "a=1")
		w.Header().Add("Set-Cookie", "b=2")
		w.WriteHeader(http.StatusAccepted)
	}))
	require.NoError(t, err)

	ev := makeEvent(http.MethodPost, "/api/echo", base64.StdEncoding.EncodeToString([]byte(`{"x":1}`)))
	ev.IsBase64Encoded = true
	ev.QueryStringParameters = map[string]string{"q": "bikes", "tag": "b"}
	ev.MultiValueQueryStringParameters = map[string][]string{"q": {"bikes"}, "tag": {"a", "b"}}

	resp, err := h.Handle(context.Background(), ev)
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Equal(t, []string{"a=1", "b=2"}, resp.MultiValueHeaders["Set-Cookie"])

	require.Equal(t, "/api/echo", got.URL.Path)
	require.Equal(t, "bikes", got.URL.Query().Get("q"))
	require.Equal(t, []string{"a", "b"}, got.URL.Query()["tag"])
	require.Equal(t, "198.51.100.7", got.RemoteAddr)
	require.Equal(t, `{"x":1}`, gotBody)
	require.Equal(t, got.Header.Get("X-Correlation-Id"), got.Header.Get("X-Request-Id"))
}

func TestHandle_InvalidBase64Body(t *testing.T) {
	h, err := NewHandler(http.NotFoundHandler())
	require.NoError(t, err)

	ev := makeEvent(http.MethodPost, "/api/chat", "%%%")
	ev.IsBase64Encoded = true
	resp, err := h.Handle(context.Background(), ev)
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "INVALID_INPUT", parseBody[errorResponse](t, resp.Body).Error)
}

func TestHandle_GeneratesCorrelationID(t *testing.T) {
	orig := newCorrelationID
	newCorrelationID = func() string { return "generated-1" }
	t.Cleanup(func() { newCorrelationID = orig })

	var got *http.Request
	h, err := NewHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		w.WriteHeader(http.StatusNoContent)
	}))
	require.NoError(t, err)

	ev := makeEvent(http.MethodGet, "/api/health", "")
	ev.MultiValueHeaders = map[string][]string{"Content-Type": {"application/json"}}
	resp, err := h.Handle(context.Background(), ev)
	require.NoError(t, err)
	require.Equal(t, []string{"generated-1"}, resp.MultiValueHeaders["X-Correlation-Id"])
	require.Equal(t, "generated-1", got.Header.Get("X-Correlation-Id"))
	require.Equal(t, "generated-1", got.Header.Get("X-Request-Id"))
}

func TestHandle_KeepsMultiValueResponseHeadersApart(t *testing.T) {
	first := "a=1; Expires=Wed, 21 Oct 2026 07:28:00 GMT"
	h, err := NewHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Set-Cookie", first)
		w.Header().Add("Set-Cookie", "b=2")
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok"))
	}))
	require.NoError(t, err)

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodGet, "/", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, []string{first, "b=2"}, resp.MultiValueHeaders["Set-Cookie"])
	require.NotContains(t, resp.Headers, "Set-Cookie")
	require.Len(t, resp.MultiValueHeaders["X-Correlation-Id"], 1)
	require.Equal(t, "ok", resp.Body)
	require.False(t, resp.IsBase64Encoded)
}
