package transcribe

import "context"

// Provider is the interface for speech-to-text backends.
type Provider interface {
	Transcribe(ctx context.Context, req Request) (*Result, error)
	Name() string  // "elevenlabs"
	Model() string // model identifier for logs
}

// Request carries one uploaded recording to a provider.
type Request struct {
	Audio       []byte
	Filename    string
	ContentType string
	Language    string // ISO 639-3, e.g. "eng"
	Diarize     bool
	TagEvents   bool // tag audio events like laughter, applause
}

// Result is the common transcription result from any provider.
type Result struct {
	Text     string
	Language string
}
