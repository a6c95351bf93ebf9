package generate

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	ragderrors "github.com/ragdhq/ragd/internal/errors"
)

// Default Ollama generator configuration.
const (
	DefaultModel   = "llama3.1:8b"
	DefaultHost    = "http://localhost:11434"
	DefaultTimeout = 120 * time.Second
)

// OllamaConfig configures an OllamaGenerator.
type OllamaConfig struct {
	Host    string
	Model   string
	Timeout time.Duration
}

// OllamaGenerator generates text using Ollama's HTTP API.
type OllamaGenerator struct {
	client *http.Client
	config OllamaConfig
	log    *slog.Logger
}

var _ Generator = (*OllamaGenerator)(nil)

// NewOllamaGenerator creates a new Ollama-backed generator.
func NewOllamaGenerator(config OllamaConfig) *OllamaGenerator {
	if config.Host == "" {
		config.Host = DefaultHost
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}

	return &OllamaGenerator{
		client: &http.Client{Timeout: config.Timeout},
		config: config,
		log:    slog.With(slog.String("component", "generate.ollama")),
	}
}

// ollamaGenerateRequest is the Ollama /api/generate request body.
type ollamaGenerateRequest struct {
	Model   string           `json:"model"`
	Prompt  string           `json:"prompt"`
	System  string           `json:"system,omitempty"`
	Stream  bool             `json:"stream"`
	Options ollamaGenOptions `json:"options,omitempty"`
}

type ollamaGenOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

// ollamaGenerateResponse is one line of the Ollama /api/generate response
// (streamed as newline-delimited JSON; the final line has Done=true).
type ollamaGenerateResponse struct {
	Model              string `json:"model"`
	Response           string `json:"response"`
	Done               bool   `json:"done"`
	DoneReason         string `json:"done_reason"`
	PromptEvalCount    int    `json:"prompt_eval_count"`
	EvalCount          int    `json:"eval_count"`
}

// Generate runs a single non-streaming completion.
func (g *OllamaGenerator) Generate(ctx context.Context, req Request) (*Response, error) {
	var content strings.Builder
	var final *Response

	_, err := g.doRequest(ctx, req, false, func(frag Fragment, resp *ollamaGenerateResponse) {
		content.WriteString(frag.Content)
		if frag.Done {
			final = &Response{
				Content:      content.String(),
				Model:        resp.Model,
				TokensUsed:   resp.PromptEvalCount + resp.EvalCount,
				FinishReason: doneReasonOrDefault(resp.DoneReason),
			}
		}
	})
	if err != nil {
		return nil, err
	}
	if final == nil {
		return nil, ragderrors.ExternalServiceError("ollama: stream ended without a final response", nil).
			WithDetail("reason", "parse_error")
	}
	return final, nil
}

// GenerateStream runs a completion, delivering fragments as they arrive.
func (g *OllamaGenerator) GenerateStream(ctx context.Context, req Request, onFragment func(Fragment) error) (*Response, error) {
	var content strings.Builder
	var final *Response
	var callbackErr error

	_, err := g.doRequest(ctx, req, true, func(frag Fragment, resp *ollamaGenerateResponse) {
		if callbackErr != nil {
			return
		}
		content.WriteString(frag.Content)
		if callbackErr = onFragment(frag); callbackErr != nil {
			return
		}
		if frag.Done {
			final = &Response{
				Content:      content.String(),
				Model:        resp.Model,
				TokensUsed:   resp.PromptEvalCount + resp.EvalCount,
				FinishReason: doneReasonOrDefault(resp.DoneReason),
			}
		}
	})
	if callbackErr != nil {
		return nil, callbackErr
	}
	if err != nil {
		return nil, err
	}
	if final == nil {
		return nil, ragderrors.ExternalServiceError("ollama: stream ended without a final response", nil).
			WithDetail("reason", "parse_error")
	}
	return final, nil
}

// doRequest performs the HTTP call and feeds each decoded line to onLine.
// It runs the request in a goroutine so ctx cancellation can abandon it
// client-side without waiting for the transport to notice.
func (g *OllamaGenerator) doRequest(ctx context.Context, req Request, stream bool, onLine func(Fragment, *ollamaGenerateResponse)) (bool, error) {
	model := req.Model
	if model == "" {
		model = g.config.Model
	}

	body := ollamaGenerateRequest{
		Model:  model,
		Prompt: req.Prompt,
		System: req.SystemPrompt,
		Stream: stream,
		Options: ollamaGenOptions{
			Temperature: req.Temperature,
			NumPredict:  req.MaxTokens,
		},
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return false, ragderrors.ExternalServiceError("ollama: marshal request", err).WithDetail("reason", "parse_error")
	}

	url := g.config.Host + "/api/generate"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return false, ragderrors.ExternalServiceError("ollama: create request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	type result struct {
		resp *http.Response
		err  error
	}
	resultCh := make(chan result, 1)
	go func() {
		resp, err := g.client.Do(httpReq)
		resultCh <- result{resp, err}
	}()

	var r result
	select {
	case <-ctx.Done():
		return false, ragderrors.CancelledError("ollama: generation cancelled", ctx.Err())
	case r = <-resultCh:
	}

	if r.err != nil {
		return false, classifyTransportError(r.err)
	}
	resp := r.resp
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		respBody, _ := io.ReadAll(resp.Body)
		return false, ragderrors.ExternalServiceError(fmt.Sprintf("ollama: model %q not found: %s", model, string(respBody)), nil).
			WithDetail("reason", "model_not_found")
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return false, ragderrors.ExternalServiceError(
			fmt.Sprintf("ollama: unexpected status %d: %s", resp.StatusCode, string(respBody)), nil)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var decoded ollamaGenerateResponse
		if err := json.Unmarshal(line, &decoded); err != nil {
			return false, ragderrors.ExternalServiceError("ollama: decode response line", err).WithDetail("reason", "parse_error")
		}
		onLine(Fragment{Content: decoded.Response, Done: decoded.Done}, &decoded)
	}
	if err := scanner.Err(); err != nil {
		g.log.Warn("ollama stream read error", slog.String("error", err.Error()))
		return false, ragderrors.ExternalServiceError("ollama: read response stream", err)
	}

	return true, nil
}

// Available checks whether Ollama is reachable.
func (g *OllamaGenerator) Available(ctx context.Context) bool {
	url := g.config.Host + "/api/tags"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}

	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	req = req.WithContext(checkCtx)

	resp, err := g.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	return resp.StatusCode == http.StatusOK
}

// classifyTransportError maps a net/http transport failure onto the
// connection-refused/timeout distinction the engine surfaces to callers.
func classifyTransportError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ragderrors.ExternalServiceError("ollama: request timed out", err).WithDetail("reason", "timeout")
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ragderrors.ExternalServiceError("ollama: connection refused", err).WithDetail("reason", "connection_refused")
	}
	return ragderrors.ExternalServiceError("ollama: request failed", err)
}

func doneReasonOrDefault(reason string) string {
	if reason == "" {
		return "stop"
	}
	return reason
}
