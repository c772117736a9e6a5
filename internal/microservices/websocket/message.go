package websocket

import (
	"encoding/json"
	"fmt"

	"mobius/internal/providers"
)

// Inbound frame parsing for the providers websocket. Frames are JSON text;
// the structure is the contract between the web client and the provider
// services (see proto/mobius.proto for the canonical shapes).

// ParseRequest decodes a provider request frame. Unknown fields are ignored;
// a missing command is an error so a garbage frame never reaches the
// dispatcher.
func ParseRequest(data []byte) (*providers.Request, error) {
	var req providers.Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("malformed request frame: %w", err)
	}
	if req.Command == "" {
		return nil, fmt.Errorf("request frame carries no command")
	}
	return &req, nil
}
