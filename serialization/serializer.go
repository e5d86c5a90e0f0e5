package serialization

import (
	"encoding/json"
	"fmt"

	"github.com/glimte/courier-go/contracts"
)

// EnvelopeSerializer handles envelope serialization
type EnvelopeSerializer interface {
	Serialize(envelope *contracts.Envelope) ([]byte, error)
	Unserialize(data []byte) (*contracts.Envelope, error)
}

// JSONSerializer provides JSON serialization for envelopes
type JSONSerializer struct{}

// NewJSONSerializer creates a new JSON envelope serializer
func NewJSONSerializer() *JSONSerializer {
	return &JSONSerializer{}
}

// Serialize serializes an envelope to JSON
func (s *JSONSerializer) Serialize(envelope *contracts.Envelope) ([]byte, error) {
	if envelope == nil {
		return nil, fmt.Errorf("envelope cannot be nil")
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope: %w", err)
	}

	return data, nil
}

// Unserialize deserializes JSON data to an envelope
func (s *JSONSerializer) Unserialize(data []byte) (*contracts.Envelope, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("data cannot be empty")
	}

	var envelope contracts.Envelope
	err := json.Unmarshal(data, &envelope)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}

	return &envelope, nil
}
