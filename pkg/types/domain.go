package types

import "time"

// AdapterRef names an adapter file in the adapter store.
type AdapterRef struct {
	// File name inside the adapters directory.
	// example: finance.safetensors
	Name string `json:"name" example:"finance.safetensors"`
}

// ModelRef identifies what the caller wants loaded. It is a comparable value;
// an empty Adapter.Name means the bare base model.
type ModelRef struct {
	// Base model known to the inference service.
	// example: llama3
	BaseModel string `json:"base_model" example:"llama3"`
	// Optional adapter to compose with the base model.
	Adapter AdapterRef `json:"adapter"`
}

// HasAdapter reports whether an adapter was requested.
func (r ModelRef) HasAdapter() bool { return r.Adapter.Name != "" }

func (r ModelRef) String() string {
	if !r.HasAdapter() {
		return r.BaseModel
	}
	return r.BaseModel + "+" + r.Adapter.Name
}

// ModelInfo is one entry of the inference service's model listing.
type ModelInfo struct {
	// example: llama3:latest
	Name       string    `json:"name" example:"llama3:latest"`
	Model      string    `json:"model,omitempty"`
	Size       int64     `json:"size,omitempty"`
	Digest     string    `json:"digest,omitempty"`
	ModifiedAt time.Time `json:"modified_at,omitempty"`
}

// TextDelta is one generated text fragment.
type TextDelta struct {
	// example: Hello
	Response string `json:"response" example:"Hello"`
	// Done is set on the upstream's final record.
	Done bool `json:"done,omitempty"`
}

// AdapterInfo describes a file in the adapter store.
type AdapterInfo struct {
	// example: finance.safetensors
	Name string `json:"name" example:"finance.safetensors"`
	// example: 16777216
	SizeBytes int64 `json:"size_bytes" example:"16777216"`
	// One of real, placeholder.
	// example: real
	Classification string `json:"classification" example:"real"`
}
