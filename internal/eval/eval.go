// Package eval implements the eval harness's data model and scoring: cases
// with expectations, runs scored against those expectations, and an
// append-only run history the `/eval` CLI sub-flow drives.
package eval

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/switchboard-cli/switchboard/internal/paths"
)

// Expectation is one predicate an eval case's output is checked against.
// Exactly one field should be set; Check reports failure reasons for
// whichever predicate doesn't hold.
type Expectation struct {
	Contains    string `json:"contains,omitempty"`
	NotContains string `json:"notContains,omitempty"`
	Regex       string `json:"regex,omitempty"`
}

// Check returns ("", true) on success, or a human-readable failure reason.
func (e Expectation) Check(output string) (reason string, ok bool) {
	switch {
	case e.Contains != "":
		if strings.Contains(output, e.Contains) {
			return "", true
		}
		return fmt.Sprintf("expected output to contain %q", e.Contains), false
	case e.NotContains != "":
		if !strings.Contains(output, e.NotContains) {
			return "", true
		}
		return fmt.Sprintf("expected output not to contain %q", e.NotContains), false
	case e.Regex != "":
		re, err := regexp.Compile(e.Regex)
		if err != nil {
			return fmt.Sprintf("invalid expectation regex %q: %v", e.Regex, err), false
		}
		if re.MatchString(output) {
			return "", true
		}
		return fmt.Sprintf("expected output to match /%s/", e.Regex), false
	default:
		return "", true
	}
}

// EvalCase is one scenario the harness drives a prompt through.
type EvalCase struct {
	ID           string        `json:"id"`
	Prompt       string        `json:"prompt"`
	Expectations []Expectation `json:"expectations"`
}

// EvalResult is one case's outcome.
type EvalResult struct {
	ID        string   `json:"id"`
	Passed    bool     `json:"passed"`
	Reasons   []string `json:"reasons,omitempty"`
	Provider  string   `json:"provider"`
	Model     string   `json:"model"`
	LatencyMs int64    `json:"latencyMs"`
}

// EvalRun is one full pass over a case set.
type EvalRun struct {
	At        int64        `json:"at"`
	Results   []EvalResult `json:"results"`
	PassRate  float64      `json:"passRate"`
	Failed    int          `json:"failed"`
	Blocked   int          `json:"blocked"`
	Threshold float64      `json:"threshold"`
}

// Invoker runs one case's prompt and reports the outcome. blocked is true
// when the policy engine denied the underlying action outright (counted
// separately from a failed expectation check).
type Invoker func(c EvalCase) (output, provider, model string, latencyMs int64, blocked bool, err error)

// Run drives every case through invoke and scores the results against
// threshold (the minimum acceptable passRate).
func Run(cases []EvalCase, threshold float64, invoke Invoker) EvalRun {
	run := EvalRun{At: NowMillis(), Threshold: threshold}

	for _, c := range cases {
		output, provider, model, latency, blocked, err := invoke(c)
		if blocked {
			run.Blocked++
			run.Results = append(run.Results, EvalResult{ID: c.ID, Passed: false, Reasons: []string{"blocked by policy"}, Provider: provider, Model: model, LatencyMs: latency})
			continue
		}
		if err != nil {
			run.Results = append(run.Results, EvalResult{ID: c.ID, Passed: false, Reasons: []string{err.Error()}, Provider: provider, Model: model, LatencyMs: latency})
			continue
		}

		var reasons []string
		for _, exp := range c.Expectations {
			if reason, ok := exp.Check(output); !ok {
				reasons = append(reasons, reason)
			}
		}
		run.Results = append(run.Results, EvalResult{
			ID:        c.ID,
			Passed:    len(reasons) == 0,
			Reasons:   reasons,
			Provider:  provider,
			Model:     model,
			LatencyMs: latency,
		})
	}

	passed := 0
	for _, r := range run.Results {
		if r.Passed {
			passed++
		}
	}
	run.Failed = len(run.Results) - passed
	if len(run.Results) > 0 {
		run.PassRate = float64(passed) / float64(len(run.Results))
	}
	return run
}

// History is the append-only JSONL log of past EvalRuns, mirroring
// telemetry's append-then-tail discipline.
type History struct {
	mu   sync.Mutex
	path string
}

func NewHistory(filename string) (*History, error) {
	if err := paths.EnsureDir(paths.GetStoreDir()); err != nil {
		return nil, err
	}
	return &History{path: filepath.Join(paths.GetStoreDir(), filename)}, nil
}

func (h *History) Append(run EvalRun) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	data, err := json.Marshal(run)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(h.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(append(data, '\n'))
	return err
}

// Tail returns the last limit runs (0 for all), oldest first.
func (h *History) Tail(limit int) ([]EvalRun, error) {
	f, err := os.Open(h.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var all []EvalRun
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		var run EvalRun
		if err := json.Unmarshal(scanner.Bytes(), &run); err != nil {
			continue
		}
		all = append(all, run)
	}
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

// Trend summarizes passRate across the last limit runs, oldest first — the
// series `/eval trend` renders.
func (h *History) Trend(limit int) ([]float64, error) {
	runs, err := h.Tail(limit)
	if err != nil {
		return nil, err
	}
	rates := make([]float64, len(runs))
	for i, r := range runs {
		rates[i] = r.PassRate
	}
	return rates, nil
}

// NowMillis is the wall-clock read for a run's timestamp.
func NowMillis() int64 { return time.Now().UnixMilli() }
