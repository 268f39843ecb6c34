package usecase

import (
	"context"
	"sync"
	"time"

	"shop-assistant/internal/domain"
)

type genResponse struct {
	text   string
	thread string
	err    error
}

type fakeGenerator struct {
	mu        sync.Mutex
	responses []genResponse
	requests  []domain.GenerateRequest
	release   chan struct{}
}

func (f *fakeGenerator) Generate(ctx context.Context, req domain.GenerateRequest) (domain.GeneratedText, error) {
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return domain.GeneratedText{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := len(f.requests)
	f.requests = append(f.requests, req)
	if len(f.responses) == 0 {
		return domain.GeneratedText{Text: "generated", ThreadID: "resp_default"}, nil
	}
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	r := f.responses[idx]
	if r.err != nil {
		return domain.GeneratedText{}, r.err
	}
	return domain.GeneratedText{Text: r.text, ThreadID: r.thread}, nil
}

func (f *fakeGenerator) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeGenerator) lastRequest() domain.GenerateRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type statusErr int

func (e statusErr) Error() string       { return "upstream status" }
func (e statusErr) HTTPStatusCode() int { return int(e) }
