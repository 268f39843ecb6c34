// Package gateway is the single seam between the usecases and a text
// generation provider.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"shop-assistant/internal/domain"
)

// Generator produces text for a request. Implementations return a
// *ProviderError for every failure and never succeed with empty text.
type Generator interface {
	Generate(ctx context.Context, req domain.GenerateRequest) (domain.GeneratedText, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req domain.GenerateRequest) (domain.GeneratedText, error)

func (f GeneratorFunc) Generate(ctx context.Context, req domain.GenerateRequest) (domain.GeneratedText, error) {
	return f(ctx, req)
}

// ProviderError is any upstream generation failure: transport error,
// timeout, non-2xx status, malformed or empty output, open circuit.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("gateway: %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Timeout reports whether the failure was a deadline expiry.
func (e *ProviderError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// AsProviderError wraps err in a *ProviderError unless it already is one.
func AsProviderError(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}
	return &ProviderError{Op: op, Err: err}
}

// WithTimeout bounds every call to next by d.
func WithTimeout(next Generator, d time.Duration) Generator {
	return GeneratorFunc(func(ctx context.Context, req domain.GenerateRequest) (domain.GeneratedText, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		out, err := next.Generate(ctx, req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
				err = fmt.Errorf("%w: %v", ctxErr, err)
			}
			return domain.GeneratedText{}, AsProviderError("generate", err)
		}
		if out.Text == "" {
			return domain.GeneratedText{}, &ProviderError{Op: "generate", Err: errors.New("empty output")}
		}
		return out, nil
	})
}
