package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"shop-assistant/internal/usecase"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

var errEmptyBody = errors.New("empty body")

const maxBodyBytes = 64 << 10

func decodeJSON(w http.ResponseWriter, r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code usecase.ErrorCode, message string) {
	respondJSON(w, status, errorResponse{Error: string(code), Message: message})
}

var reasonMessages = map[string]string{
	"empty_prompt":             "Prompt is required.",
	"prompt_too_long":          "Prompt is too long.",
	"conversation_id_too_long": "Conversation ID is too long.",
	"invalid_product_id":       "Invalid product ID.",
	"unknown_product":          "Invalid product.",
	"no_reviews":               "There are no reviews to summarize.",
}

var codeMessages = map[usecase.ErrorCode]string{
	usecase.ErrorInvalidInput: "Invalid request.",
	usecase.ErrorNotFound:     "Product not found.",
	usecase.ErrorRateLimited:  "The AI service is busy, please try again later.",
	usecase.ErrorNoContent:    "There are no reviews to summarize.",
	usecase.ErrorUpstream:     "Failed to generate a response, please try again.",
	usecase.ErrorInternal:     "Internal server error.",
}

func statusFor(code usecase.ErrorCode) int {
	switch code {
	case usecase.ErrorInvalidInput, usecase.ErrorNoContent:
		return http.StatusBadRequest
	case usecase.ErrorNotFound:
		return http.StatusNotFound
	case usecase.ErrorRateLimited:
		return http.StatusTooManyRequests
	case usecase.ErrorUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeUsecaseError maps err to its status and a client-safe message. The
// cause is only logged.
func (s *Server) writeUsecaseError(w http.ResponseWriter, r *http.Request, err error) {
	var ue *usecase.Error
	if !errors.As(err, &ue) {
		ue = &usecase.Error{Code: usecase.ErrorInternal, Reason: "unexpected_error", Err: err}
	}

	msg, ok := reasonMessages[ue.Reason]
	if !ok || ue.Code == usecase.ErrorNotFound {
		msg = codeMessages[ue.Code]
	}
	if msg == "" {
		msg = codeMessages[usecase.ErrorInternal]
	}

	attrs := []any{
		"code", ue.Code,
		"reason", ue.Reason,
		"path", r.URL.Path,
		"request_id", requestID(r),
	}
	switch ue.Code {
	case usecase.ErrorUpstream, usecase.ErrorInternal:
		s.logger.Error("request failed", append(attrs, "err", ue.Err)...)
	case usecase.ErrorRateLimited:
		s.logger.Info("request throttled upstream", attrs...)
	default:
		s.logger.Debug("request rejected", attrs...)
	}

	respondError(w, statusFor(ue.Code), ue.Code, msg)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
