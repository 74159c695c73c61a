package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

// MessagesAdapter speaks the Anthropic-Messages-style schema. Per the spec
// this wire kind is non-streaming: the full response is joined from its
// content blocks and delivered as a single delta.
type MessagesAdapter struct {
	staticModels []ModelDescriptor
}

func NewMessagesAdapter(models []ModelDescriptor) *MessagesAdapter {
	return &MessagesAdapter{staticModels: models}
}

func (a *MessagesAdapter) Kind() Kind { return KindMessages }

func (a *MessagesAdapter) ListModels(Credential) ([]ModelDescriptor, error) {
	return a.staticModels, nil
}

func (a *MessagesAdapter) ResolveBaseUrl(cred Credential) string {
	return strings.TrimRight(cred.BaseURL, "/")
}

type msgMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type msgRequest struct {
	Model     string       `json:"model"`
	MaxTokens int          `json:"max_tokens"`
	Messages  []msgMessage `json:"messages"`
}

type msgContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type msgResponse struct {
	Content   []msgContentBlock `json:"content"`
	Reply     string            `json:"reply"`
	StatusMsg string            `json:"status_msg"`
}

func (a *MessagesAdapter) Invoke(ctx context.Context, cred Credential, model, prompt string, opts InvokeOptions, onDelta func(string)) (string, Usage, error) {
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	payload, err := json.Marshal(msgRequest{
		Model:     model,
		MaxTokens: maxTokens,
		Messages:  []msgMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", Usage{}, err
	}

	url := a.ResolveBaseUrl(cred) + "/v1/messages"
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

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", Usage{}, err
	}
	if resp.StatusCode >= 400 {
		return "", Usage{}, httpError(resp.StatusCode, body)
	}

	var parsed msgResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", Usage{}, err
	}

	var text strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	result := text.String()
	if result == "" {
		result = parsed.Reply
	}
	if result == "" {
		result = parsed.StatusMsg
	}

	if onDelta != nil && result != "" {
		onDelta(result)
	}

	return result, EstimateUsage(prompt, result), nil
}
