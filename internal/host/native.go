package host

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// NativeHost implements Host using the local OS.
type NativeHost struct {
	cwd          string
	orchestrator *CommandOrchestrator
}

func NewNativeHost(cwd string) *NativeHost {
	return &NativeHost{
		cwd:          cwd,
		orchestrator: NewCommandOrchestrator(cwd),
	}
}

func (h *NativeHost) GetCWD() string { return h.cwd }

func (h *NativeHost) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(h.resolve(path))
}

func (h *NativeHost) WriteFile(path string, data []byte) error {
	absPath := h.resolve(path)
	if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
		return err
	}
	return os.WriteFile(absPath, data, 0644)
}

func (h *NativeHost) ListDir(path string) ([]FileInfo, error) {
	absPath := h.resolve(path)
	entries, err := os.ReadDir(absPath)
	if err != nil {
		return nil, err
	}
	var infos []FileInfo
	for _, entry := range entries {
		info, _ := entry.Info()
		var size int64
		if info != nil {
			size = info.Size()
		}
		infos = append(infos, FileInfo{Name: entry.Name(), Size: size, IsDir: entry.IsDir()})
	}
	return infos, nil
}

func (h *NativeHost) Mkdir(path string) error {
	return os.MkdirAll(h.resolve(path), 0755)
}

func (h *NativeHost) Remove(path string) error {
	return os.RemoveAll(h.resolve(path))
}

func (h *NativeHost) Move(src, dst string) error {
	absDst := h.resolve(dst)
	if err := os.MkdirAll(filepath.Dir(absDst), 0755); err != nil {
		return err
	}
	return os.Rename(h.resolve(src), absDst)
}

func (h *NativeHost) ExecuteCommand(ctx context.Context, command string, background bool, onOutput func(line string)) (CommandResult, error) {
	state, err := h.orchestrator.Execute(ctx, command, background, onOutput)
	if err != nil {
		return CommandResult{}, err
	}
	var cmdErr error
	if state.Error != "" {
		cmdErr = fmt.Errorf("%s", state.Error)
	}
	return CommandResult{
		ID:       state.ID,
		Output:   state.Output,
		ExitCode: state.ExitCode,
		Duration: state.EndTime.Sub(state.StartTime).Seconds(),
		Error:    cmdErr,
	}, nil
}

func (h *NativeHost) GetCommandStatus(id string) (CommandStatus, bool) {
	state, ok := h.orchestrator.GetStatus(id)
	if !ok {
		return CommandStatus{}, false
	}
	return CommandStatus{
		ID:       state.ID,
		Status:   string(state.Status),
		Output:   state.Output,
		Error:    state.Error,
		LogFile:  state.LogFile,
		ExitCode: state.ExitCode,
	}, true
}

func (h *NativeHost) ShowMessage(level string, text string) {
	fmt.Printf("[%s] %s\n", level, text)
}

func (h *NativeHost) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(h.cwd, path)
}
