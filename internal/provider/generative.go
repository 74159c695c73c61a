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
	"sync/atomic"
)

// GenerativeAdapter speaks the Google-generative-language SSE schema (P5).
// Per spec it must try up to three endpoints (user-selected, daily, prod) in
// order until one yields non-empty text, and inject the interleaved-thinking
// beta header for thinking-variant models.
type GenerativeAdapter struct {
	staticModels []ModelDescriptor
	// Endpoints, in try-order: user-selected, daily, prod. Defaults to
	// cred.BaseURL alone; if the list is empty, Invoke fails with a
	// no-endpoints error.
	endpointsFor func(cred Credential) []string
}

func NewGenerativeAdapter(models []ModelDescriptor, endpointsFor func(cred Credential) []string) *GenerativeAdapter {
	if endpointsFor == nil {
		endpointsFor = func(cred Credential) []string { return []string{cred.BaseURL} }
	}
	return &GenerativeAdapter{staticModels: models, endpointsFor: endpointsFor}
}

func (a *GenerativeAdapter) Kind() Kind { return KindGenerative }

func (a *GenerativeAdapter) ListModels(Credential) ([]ModelDescriptor, error) {
	return a.staticModels, nil
}

func (a *GenerativeAdapter) ResolveBaseUrl(cred Credential) string {
	endpoints := a.endpointsFor(cred)
	if len(endpoints) == 0 {
		return cred.BaseURL
	}
	return endpoints[0]
}

type genPart struct {
	Text string `json:"text,omitempty"`
}

type genContent struct {
	Role  string    `json:"role,omitempty"`
	Parts []genPart `json:"parts"`
}

type genInnerRequest struct {
	Contents          []genContent `json:"contents"`
	SystemInstruction *genContent  `json:"systemInstruction,omitempty"`
}

type genRequest struct {
	Project     string          `json:"project,omitempty"`
	Model       string          `json:"model"`
	Request     genInnerRequest `json:"request"`
	RequestType string          `json:"requestType"`
	RequestId   string          `json:"requestId"`
}

type genCandidate struct {
	Content genContent `json:"content"`
}

type genResponse struct {
	Response struct {
		Candidates []genCandidate `json:"candidates"`
	} `json:"response"`
}

func isThinkingVariant(model string) bool {
	return strings.Contains(strings.ToLower(model), "thinking")
}

func (a *GenerativeAdapter) Invoke(ctx context.Context, cred Credential, model, prompt string, opts InvokeOptions, onDelta func(string)) (string, Usage, error) {
	payload, err := json.Marshal(genRequest{
		Project: cred.Project,
		Model:   model,
		Request: genInnerRequest{
			Contents: []genContent{{Role: "user", Parts: []genPart{{Text: prompt}}}},
		},
		RequestType: "agent",
		RequestId:   requestID(),
	})
	if err != nil {
		return "", Usage{}, err
	}

	var lastErr error
	for _, endpoint := range a.endpointsFor(cred) {
		url := strings.TrimRight(endpoint, "/") + "/v1internal:streamGenerateContent?alt=sse"
		text, err := a.tryEndpoint(ctx, url, cred, model, payload, onDelta)
		if err != nil {
			lastErr = err
			continue
		}
		if strings.TrimSpace(text) != "" {
			return text, EstimateUsage(prompt, text), nil
		}
		lastErr = fmt.Errorf("endpoint %s returned empty text", url)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no endpoints configured")
	}
	return "", Usage{}, lastErr
}

func (a *GenerativeAdapter) tryEndpoint(ctx context.Context, url string, cred Credential, model string, payload []byte, onDelta func(string)) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cred.APIKey)
	if isThinkingVariant(model) {
		req.Header.Set("anthropic-beta", "interleaved-thinking-2025-05-14")
	}

	resp, err := sharedHTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return "", httpError(resp.StatusCode, body)
	}

	var text strings.Builder
	first := true
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return text.String(), ctx.Err()
		default:
		}

		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "" {
			continue
		}

		var chunk genResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if len(chunk.Response.Candidates) == 0 {
			continue
		}
		for _, part := range chunk.Response.Candidates[0].Content.Parts {
			if part.Text == "" {
				continue
			}
			delta := trimLeadingOnce(part.Text, &first)
			text.WriteString(delta)
			if onDelta != nil {
				onDelta(delta)
			}
		}
	}
	return text.String(), scanner.Err()
}

var requestIDCounter int64

func requestID() string {
	return fmt.Sprintf("req-%d", atomic.AddInt64(&requestIDCounter, 1))
}
