package llm

import "context"

// Request is one completion call. Model selects the model profile the
// Prompt Engine used to build Prompt; Temperature and MaxTokens are
// optional tuning knobs forwarded to the endpoint.
type Request struct {
	Prompt      string
	Model       string
	Temperature float64
	MaxTokens   int
}

// Response is a completed (possibly reassembled from a stream) text
// completion.
type Response struct {
	Text string
}

// Client is the interface every component that needs a model completion
// calls through. Implementations must respect ctx cancellation/deadline:
// the orchestrator relies on an interrupted LLM call returning promptly
// when its correlation context is cancelled.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}
