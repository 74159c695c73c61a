package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// OAICompatAdapter speaks the OpenAI chat-completions schema with the
// stream_options.include_usage extension. It backs P1, P2, P3 and P6; only
// the resolved base URL differs between them.
type OAICompatAdapter struct {
	staticModels []ModelDescriptor
}

func NewOAICompatAdapter(models []ModelDescriptor) *OAICompatAdapter {
	return &OAICompatAdapter{staticModels: models}
}

func (a *OAICompatAdapter) Kind() Kind { return KindOAICompat }

func (a *OAICompatAdapter) ListModels(Credential) ([]ModelDescriptor, error) {
	return a.staticModels, nil
}

func (a *OAICompatAdapter) ResolveBaseUrl(cred Credential) string {
	return strings.TrimRight(cred.BaseURL, "/")
}

type oaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaiStreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type oaiRequest struct {
	Model         string           `json:"model"`
	Messages      []oaiMessage     `json:"messages"`
	Stream        bool             `json:"stream"`
	StreamOptions oaiStreamOptions `json:"stream_options"`
	MaxTokens     int              `json:"max_tokens"`
}

type oaiDelta struct {
	Content string `json:"content"`
}

type oaiChoice struct {
	Delta   oaiDelta `json:"delta"`
	Message oaiDelta `json:"message"`
}

type oaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type oaiChunk struct {
	Choices []oaiChoice `json:"choices"`
	Usage   *oaiUsage   `json:"usage"`
}

func (a *OAICompatAdapter) Invoke(ctx context.Context, cred Credential, model, prompt string, opts InvokeOptions, onDelta func(string)) (string, Usage, error) {
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	reqBody := oaiRequest{
		Model:         model,
		Messages:      []oaiMessage{{Role: "user", Content: prompt}},
		Stream:        true,
		StreamOptions: oaiStreamOptions{IncludeUsage: true},
		MaxTokens:     maxTokens,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", Usage{}, err
	}

	url := a.ResolveBaseUrl(cred) + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", Usage{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cred.APIKey)

	resp, err := sharedHTTPClient.Do(req)
	if err != nil {
		return "", Usage{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return "", Usage{}, httpError(resp.StatusCode, body)
	}

	var text strings.Builder
	var usage Usage
	first := true

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return text.String(), usage, ctx.Err()
		default:
		}

		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}

		var chunk oaiChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if chunk.Usage != nil {
			usage = Usage{
				PromptTokens:     chunk.Usage.PromptTokens,
				CompletionTokens: chunk.Usage.CompletionTokens,
				TotalTokens:      chunk.Usage.TotalTokens,
			}
		}
		for _, choice := range chunk.Choices {
			delta := choice.Delta.Content
			if delta == "" {
				delta = choice.Message.Content
			}
			if delta == "" {
				continue
			}
			delta = trimLeadingOnce(delta, &first)
			text.WriteString(delta)
			if onDelta != nil {
				onDelta(delta)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return text.String(), usage, fmt.Errorf("stream read: %w", err)
	}

	if usage.TotalTokens == 0 {
		usage = EstimateUsage(prompt, text.String())
	}
	return text.String(), usage, nil
}
