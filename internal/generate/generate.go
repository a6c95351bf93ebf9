// Package generate defines the engine-facing Generator (LLM) interface and
// its request/response shapes. Concrete clients (Ollama, or any other
// text-in/text-out backend) implement Generator.
package generate

import "context"

// Request is a single generation call: a prompt plus sampling parameters.
type Request struct {
	Prompt       string
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
	Model        string
}

// Response is the result of a completed (non-streaming) generation call.
type Response struct {
	Content      string
	Model        string
	TokensUsed   int
	FinishReason string
}

// Fragment is one incremental piece of a streamed response.
type Fragment struct {
	Content string
	Done    bool
}

// Generator is the engine-facing text-in/text-out LLM interface. It has no
// knowledge of retrieval, context assembly, or scoring prompts; those live
// in the orchestrator.
type Generator interface {
	// Generate runs a single completion and returns the full response.
	Generate(ctx context.Context, req Request) (*Response, error)

	// GenerateStream runs a completion and delivers incremental fragments
	// to onFragment as they arrive. It returns the same final Response a
	// non-streaming call would have produced.
	GenerateStream(ctx context.Context, req Request, onFragment func(Fragment) error) (*Response, error)
}
