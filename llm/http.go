package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout is the per-LLM-call timeout applied when the caller's
// context carries no earlier deadline.
const DefaultTimeout = 30 * time.Second

// wireRequest is the JSON body sent to the completion endpoint.
type wireRequest struct {
	Prompt      string  `json:"prompt"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

// wireChunk is one line of a streamed or single-shot response body.
type wireChunk struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// HTTPClient calls a generic HTTP text-completion endpoint: POST prompt,
// model, and optional temperature/max_tokens; read back either a single
// JSON object or newline-delimited streamed chunks, concatenating
// Response fields until Done.
type HTTPClient struct {
	endpoint   string
	httpClient *http.Client
}

// NewHTTPClient constructs an HTTPClient posting to endpoint. If client
// is nil, a client with DefaultTimeout is used.
func NewHTTPClient(endpoint string, client *http.Client) *HTTPClient {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &HTTPClient{endpoint: endpoint, httpClient: client}
}

func (c *HTTPClient) Complete(ctx context.Context, req Request) (Response, error) {
	body, err := json.Marshal(wireRequest{
		Prompt:      req.Prompt,
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return Response{}, fmt.Errorf("llm: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("llm: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("llm: call endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Response{}, fmt.Errorf("llm: endpoint returned %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	text, err := concatenateChunks(resp.Body)
	if err != nil {
		return Response{}, err
	}
	return Response{Text: text}, nil
}

// concatenateChunks reads body as either one JSON object or
// newline-delimited streamed chunks, concatenating each chunk's Response
// text until a chunk with Done=true (or EOF).
func concatenateChunks(body io.Reader) (string, error) {
	var sb strings.Builder
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk wireChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			return "", fmt.Errorf("llm: decode response chunk: %w", err)
		}
		sb.WriteString(chunk.Response)
		if chunk.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("llm: read response body: %w", err)
	}
	return sb.String(), nil
}
