package domain

// GenerateRequest is the provider-agnostic text generation request used by
// the usecases and the gateway implementations.
type GenerateRequest struct {
	Model           string
	Instructions    string
	Prompt          string
	PreviousThread  string
	MaxOutputTokens int
	Temperature     float64
}

// GeneratedText is the provider-agnostic generation result. ThreadID is the
// opaque token a later request passes back as PreviousThread.
type GeneratedText struct {
	Text     string
	ThreadID string
}
