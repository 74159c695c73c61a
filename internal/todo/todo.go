// Package todo implements the TODO orchestrator (§4.7): plan an objective
// into ordered tasks, persist the run, and drive each task through the
// process-runtime adapter.
package todo

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/switchboard-cli/switchboard/internal/paths"
	"github.com/switchboard-cli/switchboard/internal/provider"
)

// Status is one task's lifecycle state.
type Status string

const (
	Pending    Status = "pending"
	InProgress Status = "in_progress"
	Completed  Status = "completed"
	Failed     Status = "failed"
)

// Task is one planned step of a TodoRun.
type Task struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Status Status `json:"status"`
	Note   string `json:"note,omitempty"`
}

// TodoRun is the persistent record of one RunTodo invocation. Every status
// transition overwrites the whole record atomically.
type TodoRun struct {
	ID        string    `json:"id"`
	Objective string    `json:"objective"`
	Tasks     []Task    `json:"tasks"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Planner asks the default model (via the router, low-token cap) for a
// planning JSON; RunTodo falls back to a deterministic planner if it
// returns fewer than two tasks.
type Planner interface {
	Plan(ctx context.Context, objective string) (string, error)
}

// Executor runs one task to completion and reports its outcome text.
type Executor interface {
	ExecuteTask(ctx context.Context, plan TodoRun, currentTaskID string, prompt string) (string, error)
}

type planJSON struct {
	Tasks []json.RawMessage `json:"tasks"`
}

type titledTask struct {
	Title string `json:"title"`
}

var fencedCodeBlock = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// parsePlan tolerates a fenced code block wrapping the JSON object, and
// tasks given either as bare strings or {"title": "..."} objects.
func parsePlan(raw string) []string {
	trimmed := strings.TrimSpace(raw)
	if m := fencedCodeBlock.FindStringSubmatch(trimmed); m != nil {
		trimmed = strings.TrimSpace(m[1])
	}

	var parsed planJSON
	if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
		return nil
	}

	var titles []string
	for _, t := range parsed.Tasks {
		var s string
		if err := json.Unmarshal(t, &s); err == nil && strings.TrimSpace(s) != "" {
			titles = append(titles, strings.TrimSpace(s))
			continue
		}
		var obj titledTask
		if err := json.Unmarshal(t, &obj); err == nil && strings.TrimSpace(obj.Title) != "" {
			titles = append(titles, strings.TrimSpace(obj.Title))
		}
	}
	return titles
}

var imperativeVerb = regexp.MustCompile(`(?i)\b(create|install|run|build|setup|set up|configure|deploy|write|add|update|fix|remove|delete|check|verify|test)\b`)

// fallbackPlan deterministically splits objective on imperative-verb
// boundaries when the model's plan is too sparse to act on.
func fallbackPlan(objective string) []string {
	locs := imperativeVerb.FindAllStringIndex(objective, -1)
	if len(locs) < 2 {
		return []string{objective}
	}
	var tasks []string
	for i, loc := range locs {
		end := len(objective)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		segment := strings.TrimSpace(objective[loc[0]:end])
		segment = strings.Trim(segment, ".,; ")
		if segment != "" {
			tasks = append(tasks, segment)
		}
	}
	if len(tasks) < 2 {
		return []string{objective}
	}
	return tasks
}

// storeFilenameFor derives the per-run JSON filename under the config
// store directory.
func storeFilenameFor(id string) string {
	return filepath.Join("todo-runs", id+".json")
}

// save atomically writes the run record to its store path, returning the
// absolute path written.
func (r *TodoRun) save() (string, error) {
	dir := filepath.Join(paths.GetStoreDir(), "todo-runs")
	if err := paths.EnsureDir(dir); err != nil {
		return "", err
	}
	r.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(paths.GetStoreDir(), storeFilenameFor(r.ID))
	if err := paths.WriteFileAtomic(path, data, 0644); err != nil {
		return "", err
	}
	return path, nil
}

// RunTodo implements §4.7 end to end.
func RunTodo(ctx context.Context, objective string, planner Planner, executor Executor) (string, error) {
	var titles []string
	if planner != nil {
		if raw, err := planner.Plan(ctx, objective); err == nil {
			titles = parsePlan(raw)
		}
	}
	if len(titles) < 2 {
		titles = fallbackPlan(objective)
	}

	run := TodoRun{
		ID:        uuid.NewString(),
		Objective: objective,
		CreatedAt: time.Now(),
	}
	for _, title := range titles {
		run.Tasks = append(run.Tasks, Task{ID: uuid.NewString(), Title: title, Status: Pending})
	}
	storePath, err := run.save()
	if err != nil {
		return "", fmt.Errorf("todo: persist run: %w", err)
	}

	var lastOutput string
	for i := range run.Tasks {
		run.Tasks[i].Status = InProgress
		if _, err := run.save(); err != nil {
			return "", fmt.Errorf("todo: persist run: %w", err)
		}

		prompt := taskPrompt(run, run.Tasks[i])
		output, err := executor.ExecuteTask(ctx, run, run.Tasks[i].ID, prompt)
		if err != nil {
			run.Tasks[i].Status = Failed
			run.Tasks[i].Note = err.Error()
			_, _ = run.save()
			return "", fmt.Errorf("todo: step %s failed: %w", run.Tasks[i].ID, err)
		}

		run.Tasks[i].Status = Completed
		run.Tasks[i].Note = trimNote(output)
		lastOutput = output
		if _, err := run.save(); err != nil {
			return "", fmt.Errorf("todo: persist run: %w", err)
		}
	}

	progress := fmt.Sprintf("%d/%d tasks completed", len(run.Tasks), len(run.Tasks))
	return fmt.Sprintf("%s\n\n%s\nrun %s\nstored at %s", lastOutput, progress, run.ID, storePath), nil
}

func taskPrompt(run TodoRun, current Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Objective: %s\n\nFull plan:\n", run.Objective)
	for i, t := range run.Tasks {
		marker := " "
		if t.ID == current.ID {
			marker = ">"
		}
		fmt.Fprintf(&b, "%s %d. %s [%s]\n", marker, i+1, t.Title, t.Status)
	}
	fmt.Fprintf(&b, "\nCurrent task: %s\n", current.Title)
	return b.String()
}

func trimNote(output string) string {
	const maxNote = 280
	trimmed := strings.TrimSpace(output)
	if len(trimmed) <= maxNote {
		return trimmed
	}
	return trimmed[:maxNote] + "…"
}

// ProcExecExecutor adapts the P-exec provider.Adapter to the Executor
// interface, embedding the current task's prompt.
type ProcExecExecutor struct {
	Adapter provider.Adapter
	Model   string
	Cred    provider.Credential
}

func (e ProcExecExecutor) ExecuteTask(ctx context.Context, plan TodoRun, currentTaskID string, prompt string) (string, error) {
	text, _, err := e.Adapter.Invoke(ctx, e.Cred, e.Model, prompt, provider.InvokeOptions{}, nil)
	return text, err
}
