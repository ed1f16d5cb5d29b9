// Package llm implements the LLM conversation worker (C6): a streaming
// OpenAI-compatible chat-completions client, persistent per-session chat
// history, and the QUESTION:/ACTION: line parser.
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

	"livewire/internal/transcript"
)

// TokenCallback is invoked once per streamed content delta.
type TokenCallback func(content string)

// Client talks to an OpenAI-compatible chat-completions endpoint.
type Client struct {
	httpClient *http.Client
	model      string
}

// NewClient builds a streaming chat-completions client.
func NewClient(model string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 120 * time.Second},
		model:      model,
	}
}

type chatRequest struct {
	Model       string                `json:"model"`
	Messages    []transcript.ChatTurn `json:"messages"`
	Temperature float64               `json:"temperature"`
	MaxTokens   int                   `json:"max_tokens"`
	Stream      bool                  `json:"stream"`
}

// StreamChat issues a streaming chat-completions request against
// endpointURL+"/chat/completions" with temperature=0.1, max_tokens=512 per
// spec.md §4.6, invoking onToken for each content delta as it arrives, and
// returns the full aggregated text. Cancelling ctx aborts the in-flight
// stream (the LLM worker's cooperative-cancellation suspension point).
func (c *Client) StreamChat(ctx context.Context, endpointURL string, history []transcript.ChatTurn, onToken TokenCallback) (string, error) {
	reqBody, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    history,
		Temperature: 0.1,
		MaxTokens:   512,
		Stream:      true,
	})
	if err != nil {
		return "", fmt.Errorf("llm: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(endpointURL, "/")+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("llm: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm: connect: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("llm: status %d: %s", resp.StatusCode, body)
	}

	return consumeChatStream(ctx, resp.Body, onToken)
}

// consumeChatStream scans "data: "-prefixed SSE lines ending in [DONE],
// extracting delta.content from each chat-completions chunk.
func consumeChatStream(ctx context.Context, body io.Reader, onToken TokenCallback) (string, error) {
	var full strings.Builder
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return full.String(), ctx.Err()
		default:
		}

		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			return full.String(), nil
		}

		var chunk struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		content := chunk.Choices[0].Delta.Content
		if content == "" {
			continue
		}
		if onToken != nil {
			onToken(content)
		}
		full.WriteString(content)
	}
	if err := scanner.Err(); err != nil {
		return full.String(), fmt.Errorf("llm: stream read: %w", err)
	}
	return full.String(), nil
}
