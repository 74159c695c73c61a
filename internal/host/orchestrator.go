package host

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/creack/pty"
	"github.com/google/uuid"

	"github.com/switchboard-cli/switchboard/internal/format"
	"github.com/switchboard-cli/switchboard/internal/paths"
)

type CommandLabel string

const (
	StatusRunning   CommandLabel = "running"
	StatusCompleted CommandLabel = "completed"
	StatusFailed    CommandLabel = "failed"
)

// MaxBufferSize matches the execution pipeline's "bounded tail" requirement:
// captured output is tailed to at most this many characters in the response,
// while the full transcript stays on disk in the per-command log file.
const MaxBufferSize = 5000

type CommandState struct {
	ID        string       `json:"id"`
	Command   string       `json:"command"`
	Status    CommandLabel `json:"status"`
	Output    string       `json:"output,omitempty"`
	Error     string       `json:"error,omitempty"`
	LogFile   string       `json:"log_file,omitempty"`
	ExitCode  int          `json:"exit_code"`
	StartTime time.Time    `json:"start_time"`
	EndTime   time.Time    `json:"end_time,omitempty"`
}

// CommandOrchestrator runs shell commands under a pty so interactive tools
// (progress bars, colorized output) stream the way they would in a real
// terminal, and tracks each invocation by id for later status lookups.
type CommandOrchestrator struct {
	cwd      string
	commands map[string]*CommandState
	mu       sync.RWMutex
}

func NewCommandOrchestrator(cwd string) *CommandOrchestrator {
	return &CommandOrchestrator{
		cwd:      cwd,
		commands: make(map[string]*CommandState),
	}
}

func (o *CommandOrchestrator) Execute(ctx context.Context, shellCmd string, background bool, onOutput func(line string)) (*CommandState, error) {
	id := uuid.New().String()
	state := &CommandState{
		ID:        id,
		Command:   shellCmd,
		Status:    StatusRunning,
		StartTime: time.Now(),
	}

	o.mu.Lock()
	o.commands[id] = state
	o.mu.Unlock()

	logDir := paths.GetLogDir(o.cwd)
	if err := paths.EnsureDir(logDir); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	state.LogFile = filepath.Join(logDir, fmt.Sprintf("%s.log", id))

	var cmdCtx context.Context
	if background {
		cmdCtx = context.Background()
	} else {
		cmdCtx = ctx
	}

	cmd := exec.CommandContext(cmdCtx, "sh", "-c", shellCmd)
	cmd.Dir = o.cwd

	if background {
		go o.run(cmd, state, onOutput)
		return state, nil
	}

	o.run(cmd, state, onOutput)
	return state, nil
}

func (o *CommandOrchestrator) run(cmd *exec.Cmd, state *CommandState, onOutput func(line string)) {
	logFile, err := os.Create(state.LogFile)
	if err != nil {
		o.mu.Lock()
		state.Status = StatusFailed
		state.Error = fmt.Sprintf("failed to create log file: %v", err)
		o.mu.Unlock()
		return
	}
	defer logFile.Close()

	ptmx, err := pty.Start(cmd)
	if err != nil {
		o.mu.Lock()
		state.Status = StatusFailed
		state.Error = fmt.Sprintf("failed to start command: %v", err)
		o.mu.Unlock()
		return
	}
	defer ptmx.Close()

	var tail []byte
	scanner := bufio.NewScanner(ptmx)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		io.WriteString(logFile, line+"\n")
		clean := format.ProcessTerminalOutput(line)
		tail = append(tail, []byte(clean+"\n")...)
		if onOutput != nil {
			onOutput(clean)
		}
	}

	err = cmd.Wait()

	o.mu.Lock()
	defer o.mu.Unlock()

	state.EndTime = time.Now()
	if err != nil {
		state.Status = StatusFailed
		state.Error = err.Error()
		if exitErr, ok := err.(*exec.ExitError); ok {
			state.ExitCode = exitErr.ExitCode()
		} else {
			state.ExitCode = -1
		}
	} else {
		state.Status = StatusCompleted
	}

	if len(tail) > MaxBufferSize {
		state.Output = string(tail[len(tail)-MaxBufferSize:])
	} else {
		state.Output = string(tail)
	}
}

func (o *CommandOrchestrator) GetStatus(id string) (*CommandState, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	state, ok := o.commands[id]
	return state, ok
}
