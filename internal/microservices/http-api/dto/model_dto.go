package dto

import (
	"encoding/json"
	"time"
)

// Data Transfer Objects for model upload and quote retrieval

// UploadResponse: payload returned by POST /upload. model_id is -1 when the
// upload was not stored, matching what the upload form expects.
type UploadResponse struct {
	Success bool  `json:"success"`
	ModelID int64 `json:"model_id"`
}

// ModelResponse: one entry of the user's model list
type ModelResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// QuoteRequest: query parameters accepted by GET /quote
type QuoteRequest struct {
	MobiusID int64   `form:"mobius_id" binding:"required"`
	Quantity int     `form:"quantity,default=1"`
	Scale    float64 `form:"scale,default=1.0"`
	Unit     string  `form:"unit,default=cm"`
	Currency string  `form:"currency"`
	Material string  `form:"material"`
}

// QuoteHistoryRequest: query parameters accepted by GET /quote_history
type QuoteHistoryRequest struct {
	MobiusID int64  `form:"mobius_id" binding:"required"`
	Provider string `form:"provider"`
}

// QuoteRecord: one persisted provider quote in a history response
type QuoteRecord struct {
	ID        int64           `json:"id"`
	ModelID   int64           `json:"model_id"`
	Provider  string          `json:"provider"`
	Payload   json.RawMessage `json:"payload"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// ProviderState: one provider's terminal answer inside a quote or provider
// upload response
type ProviderState struct {
	Provider string `json:"provider"`
	State    string `json:"state"`
	Response any    `json:"response,omitempty"`
	Error    string `json:"error,omitempty"`
}
