package providers

import (
	"context"
	"encoding/json"
	"errors"
)

// Command identifiers understood by the provider services. The values match
// the Command enum in proto/mobius.proto and the payloads the web client sends.
type Command string

const (
	CommandQuote  Command = "QUOTE"
	CommandUpload Command = "UPLOAD"
)

// State identifiers for worker responses, mirroring WorkerState in the proto
// schema. UPLOADING frames are intermediate, RESULT/ERROR are terminal.
type State string

const (
	StateUploading State = "UPLOADING"
	StateResult    State = "RESULT"
	StateError     State = "ERROR"
)

var (
	ErrUnknownCommand  = errors.New("unknown command")
	ErrUnknownProvider = errors.New("unknown provider")
	ErrNotModelOwner   = errors.New("model does not belong to the requesting user")
)

// QuoteParams are the pricing knobs forwarded to a provider. Field names
// follow the upload form; each provider maps them to its own API names.
type QuoteParams struct {
	Quantity int     `json:"quantity"`
	Scale    float64 `json:"scale"`
	Unit     string  `json:"unit"`
	Currency string  `json:"currency,omitempty"`
	Material string  `json:"material,omitempty"`
}

// Request is a unit of work for the provider services, as received over the
// providers websocket or built by the HTTP handlers.
type Request struct {
	ID       string      `json:"id,omitempty"`
	Command  Command     `json:"command"`
	MobiusID int64       `json:"mobius_id"`
	UserID   string      `json:"-"`
	Params   QuoteParams `json:"params"`
}

// WorkerState is one state transition of an in-flight request. A request
// produces zero or more UPLOADING frames followed by exactly one RESULT or
// ERROR frame per provider.
type WorkerState struct {
	RequestID string          `json:"request_id,omitempty"`
	Provider  string          `json:"provider"`
	State     State           `json:"state"`
	Progress  int             `json:"progress,omitempty"`
	Response  json.RawMessage `json:"response,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// ProgressFunc receives upload percentages while a model is pushed to a
// provider.
type ProgressFunc func(percent int)

// UploadResult is what a provider hands back after accepting a model.
type UploadResult struct {
	// ProviderModelID is the provider's own identifier for the uploaded
	// model, needed for subsequent quote requests.
	ProviderModelID string
	Raw             json.RawMessage
}

// Provider is a 3D print service we can push models to and price against.
type Provider interface {
	Name() string
	Upload(ctx context.Context, filename string, data []byte, progress ProgressFunc) (*UploadResult, error)
	Quote(ctx context.Context, providerModelID string, params QuoteParams) (json.RawMessage, error)
}
