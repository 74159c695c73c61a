// Package provider implements the wire-protocol adapters (four Kinds,
// serving the six providers plus P-exec) behind one uniform capability set. Per the tagged-variant design, each Kind owns its
// own request/response shapes; the router only ever talks to the Adapter
// interface.
package provider

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Kind tags which wire protocol an adapter speaks.
type Kind string

const (
	KindOAICompat  Kind = "oai-compat"  // P1, P2, P3, P6
	KindMessages   Kind = "messages"    // P4
	KindGenerative Kind = "generative"  // P5
	KindProcExec   Kind = "procexec"    // P-exec
)

// ModelDescriptor describes one model a provider exposes.
type ModelDescriptor struct {
	ID              string
	Name            string
	ContextWindow   int
	MaxTokens       int
	InputModalities []string // subset of {"text","image"}
}

// Credential carries whatever claims an adapter needs to reach its backend.
// Adapters must re-resolve before use; a handle with an empty APIKey (and no
// process binary for KindProcExec) is treated as unresolved.
type Credential struct {
	APIKey      string
	BaseURL     string
	Project     string
	ProcessPath string // KindProcExec only: path to the external runtime binary
	ExpiresAt   time.Time
}

func (c Credential) Expired() bool {
	return !c.ExpiresAt.IsZero() && time.Now().After(c.ExpiresAt)
}

// Usage is token accounting for one call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// EstimateUsage derives usage when a server doesn't report it:
// promptTokens = ceil(len(prompt)/4), same for completion, total = sum.
func EstimateUsage(prompt, completion string) Usage {
	p := ceilDiv4(len(prompt))
	c := ceilDiv4(len(completion))
	return Usage{PromptTokens: p, CompletionTokens: c, TotalTokens: p + c}
}

func ceilDiv4(n int) int {
	if n <= 0 {
		return 0
	}
	return (n + 3) / 4
}

// InvokeOptions bounds a single Invoke call.
type InvokeOptions struct {
	MaxTokens   int
	Thinking    bool // not read by any adapter; P5 picks the thinking header from the model name
	ProgressCb  func(line string)
}

// Adapter is the uniform capability set the router drives every provider
// through: ListModels, Invoke, ResolveBaseUrl.
type Adapter interface {
	Kind() Kind
	ListModels(cred Credential) ([]ModelDescriptor, error)
	ResolveBaseUrl(cred Credential) string
	// Invoke streams text deltas to onDelta as they arrive (a single final
	// chunk for non-streaming protocols), and returns the full joined text.
	Invoke(ctx context.Context, cred Credential, model string, prompt string, opts InvokeOptions, onDelta func(delta string)) (text string, usage Usage, err error)
}

// RouteCandidate is a (provider, model, credential) triple built per prompt;
// immutable, and discarded once the request completes.
type RouteCandidate struct {
	ProviderId string // config.ProviderId as a string, to avoid an import cycle
	Model      string
	Credential Credential
	BaseUrl    string
	Adapter    Adapter
}

// sharedHTTPClient is reused by every HTTP-speaking adapter, matching the
// persistent-connection-pool idiom the upstream provider code used.
var sharedHTTPClient = &http.Client{
	Timeout: 10 * time.Minute,
	Transport: &http.Transport{
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	},
}

// httpError renders a non-2xx response body as the adapter's error, per the
// "adapters surface the response body as an error string" rule.
func httpError(statusCode int, body []byte) error {
	return fmt.Errorf("http %d: %s", statusCode, string(body))
}

// trimLeadingOnce trims leading whitespace only from the first visible
// chunk of a stream; the caller tracks "first" state.
func trimLeadingOnce(s string, first *bool) string {
	if *first {
		*first = false
		return trimLeadingSpace(s)
	}
	return s
}

func trimLeadingSpace(s string) string {
	i := 0
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r') {
		i++
	}
	return s[i:]
}
