package provider

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/creack/pty"
	"github.com/google/uuid"

	"github.com/switchboard-cli/switchboard/internal/paths"
)

// ProcExecAdapter invokes an external runtime binary per call instead of
// speaking HTTP. It backs P-exec, which is called directly by the TODO
// orchestrator and the system-execution pipeline path (not via the router).
type ProcExecAdapter struct {
	staticModels []ModelDescriptor
	homeDir      string
}

func NewProcExecAdapter(models []ModelDescriptor, homeDir string) *ProcExecAdapter {
	return &ProcExecAdapter{staticModels: models, homeDir: homeDir}
}

func (a *ProcExecAdapter) Kind() Kind { return KindProcExec }

func (a *ProcExecAdapter) ListModels(Credential) ([]ModelDescriptor, error) {
	return a.staticModels, nil
}

func (a *ProcExecAdapter) ResolveBaseUrl(Credential) string { return "" }

// Invoke spawns `<processPath> exec --sandbox workspace-write --ephemeral
// --skip-git-repo-check --add-dir <home> --color never --output-last-message
// <tmpfile> --model <id> --cd <home> <prompt>`, streams stdout/stderr to
// opts.ProgressCb, and reads the final message from the tmpfile on exit.
func (a *ProcExecAdapter) Invoke(ctx context.Context, cred Credential, model, prompt string, opts InvokeOptions, onDelta func(string)) (string, Usage, error) {
	if cred.ProcessPath == "" {
		return "", Usage{}, fmt.Errorf("no process-spawn runtime configured")
	}

	if err := paths.EnsureDir(paths.GetTmpDir()); err != nil {
		return "", Usage{}, err
	}
	tmpFile := paths.GetTmpDir() + "/" + uuid.New().String() + ".msg"
	defer os.Remove(tmpFile)

	args := []string{
		"exec",
		"--sandbox", "workspace-write",
		"--ephemeral",
		"--skip-git-repo-check",
		"--add-dir", a.homeDir,
		"--color", "never",
		"--output-last-message", tmpFile,
		"--model", model,
		"--cd", a.homeDir,
		prompt,
	}

	cmd := exec.CommandContext(ctx, cred.ProcessPath, args...)

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return "", Usage{}, fmt.Errorf("failed to spawn process runtime: %w", err)
	}
	defer ptmx.Close()

	scanner := bufio.NewScanner(ptmx)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if onDelta != nil {
			onDelta(line + "\n")
		}
		if opts.ProgressCb != nil {
			opts.ProgressCb(line)
		}
	}

	waitErr := cmd.Wait()

	final, readErr := os.ReadFile(tmpFile)
	if readErr != nil || len(strings.TrimSpace(string(final))) == 0 {
		if waitErr != nil {
			return "", Usage{}, fmt.Errorf("process runtime exited with error and no final message: %w", waitErr)
		}
		return "", Usage{}, fmt.Errorf("process runtime produced no final message")
	}
	if waitErr != nil {
		return "", Usage{}, fmt.Errorf("process runtime exited with error: %w", waitErr)
	}

	text := string(final)
	return text, EstimateUsage(prompt, text), nil
}
