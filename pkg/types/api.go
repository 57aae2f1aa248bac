package types

// LoadStatus reports whether a load performed a swap.
type LoadStatus string

const (
	LoadSuccess       LoadStatus = "success"
	LoadAlreadyLoaded LoadStatus = "already_loaded"
)

// LoadRequest is the payload of POST /api/models/load.
type LoadRequest struct {
	// Base model to activate.
	// example: llama3
	ModelName string `json:"model_name" example:"llama3"`
	// Optional adapter file to compose with the base model.
	// example: finance.safetensors
	AdapterName string `json:"adapter_name,omitempty" example:"finance.safetensors"`
}

// LoadResult is returned by POST /api/models/load.
type LoadResult struct {
	// example: success
	Status LoadStatus `json:"status" example:"success"`
	// Name of the model now active upstream (base or composite).
	// example: llama3-with-finance
	Loaded string `json:"loaded" example:"llama3-with-finance"`
	// Set when the adapter was a placeholder and the bare base model was used.
	Degraded bool `json:"degraded,omitempty"`
	// Set when Loaded names a composite model.
	Composite bool `json:"composite,omitempty"`
}

// PromptRequest is the payload of POST /api/models/prompt.
type PromptRequest struct {
	// example: llama3
	ModelName string `json:"model_name" example:"llama3"`
	// example: finance.safetensors
	AdapterName string `json:"adapter_name,omitempty" example:"finance.safetensors"`
	// Required prompt text.
	// example: Summarize the quarterly report.
	PromptText string `json:"prompt_text" example:"Summarize the quarterly report."`
	// Maximum number of tokens to generate; 0 uses the server default.
	// example: 512
	MaxTokens int `json:"max_tokens,omitempty" example:"512"`
}

// ChatRequest is the payload of POST /api/chatbot/message.
type ChatRequest struct {
	// example: What is a LoRA adapter?
	Message string `json:"message" example:"What is a LoRA adapter?"`
	// example: 256
	MaxTokens int `json:"max_tokens,omitempty" example:"256"`
}

// ChatResponse is returned by POST /api/chatbot/message.
type ChatResponse struct {
	Text string `json:"text"`
}

// ModelName is one entry of GET /api/models/.
type ModelName struct {
	// example: llama3:latest
	Name string `json:"name" example:"llama3:latest"`
}

// StreamRecord is one NDJSON line of a prompt stream.
type StreamRecord struct {
	Response string `json:"response,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// example: adapter not found: finance.safetensors
	Error string `json:"error" example:"adapter not found: finance.safetensors"`
	// example: 404
	Code int `json:"code" example:"404"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Session state: idle, loading or ready.
	// example: ready
	State string `json:"state" example:"ready"`
	// Model currently active upstream, empty when idle.
	// example: llama3-with-finance
	ActiveModel string `json:"active_model,omitempty" example:"llama3-with-finance"`
	// Whether ActiveModel is a composite created by this server.
	ActiveComposite bool `json:"active_composite,omitempty"`
	// Swap currently in progress, if any.
	PendingSwap *ModelRef `json:"pending_swap,omitempty"`
	// Last swap error observed.
	LastError string `json:"last_error,omitempty"`
	// example: 12
	SwapsTotal uint64 `json:"swaps_total" example:"12"`
	// example: 1
	SwapFailuresTotal uint64 `json:"swap_failures_total" example:"1"`
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}
