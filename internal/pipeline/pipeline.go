// Package pipeline implements the execution pipeline's decision tree
// (§4.6): it routes a classified prompt to the filesystem, shell, system
// execution, TODO, or chat path, narrating every step through a single
// ExecutorLogSession.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/switchboard-cli/switchboard/internal/config"
	"github.com/switchboard-cli/switchboard/internal/executorlog"
	"github.com/switchboard-cli/switchboard/internal/host"
	"github.com/switchboard-cli/switchboard/internal/intent"
	"github.com/switchboard-cli/switchboard/internal/memoryctx"
	"github.com/switchboard-cli/switchboard/internal/policy"
	"github.com/switchboard-cli/switchboard/internal/provider"
	"github.com/switchboard-cli/switchboard/internal/router"
	"github.com/switchboard-cli/switchboard/internal/todo"
)

const shellOutputTailLimit = 5000

// cliVersion is the switchboard binary's own version string, reported by
// the "cli tool version" direct command.
const cliVersion = "0.1.0-dev"

// packageInventoryCommand queries whichever package manager is present on
// the host; it is the actual OS query behind the "installed packages"
// direct command rather than a canned response.
const packageInventoryCommand = `if command -v dpkg >/dev/null 2>&1; then dpkg -l; ` +
	`elif command -v rpm >/dev/null 2>&1; then rpm -qa; ` +
	`elif command -v brew >/dev/null 2>&1; then brew list; ` +
	`elif command -v apk >/dev/null 2>&1; then apk info; ` +
	`else echo "no supported package manager found"; fi`

// ProgressStage is one of the light-summarizer's output categories.
type ProgressStage string

const (
	StageRunningCommand ProgressStage = "running command"
	StageReadingFiles   ProgressStage = "reading files"
	StageWritingFiles   ProgressStage = "writing files"
	StageApplyingPatch  ProgressStage = "applying patch"
	StageSearchingWeb   ProgressStage = "searching web"
	StagePlanning       ProgressStage = "planning"
	StageThinking       ProgressStage = "thinking"
	StageError          ProgressStage = "error"
	StageFinalizing     ProgressStage = "finalizing"
)

var stageKeywords = []struct {
	stage    ProgressStage
	keywords []string
}{
	{StageRunningCommand, []string{"running", "executing", "$ "}},
	{StageReadingFiles, []string{"reading", "opened", "viewing"}},
	{StageWritingFiles, []string{"writing", "saved", "created file"}},
	{StageApplyingPatch, []string{"patch", "diff", "applying"}},
	{StageSearchingWeb, []string{"searching", "http://", "https://"}},
	{StagePlanning, []string{"plan", "planning"}},
	{StageThinking, []string{"thinking", "reasoning"}},
	{StageError, []string{"error", "failed", "traceback"}},
}

// ClassifyProgressLine implements the light summarizer that labels raw
// progress lines for the live activity feed.
func ClassifyProgressLine(line string) ProgressStage {
	lower := strings.ToLower(line)
	for _, entry := range stageKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				return entry.stage
			}
		}
	}
	return StageFinalizing
}

// Activity receives narrated pipeline output: progress lines, final results,
// and denials. The messenger/TUI layer implements this.
type Activity interface {
	StartActivity(actor string)
	Progress(stage ProgressStage, line string)
	Result(text string)
	Denied(reason string)
}

// Pipeline wires together the policy engine, host, router, and executor log
// to carry out one classified prompt.
type Pipeline struct {
	Host          host.Host
	Router        *router.Router
	PolicyStore   *config.Store[config.PolicyConfig, *config.PolicyConfig]
	Log           *executorlog.Manager
	ProcExec      provider.Adapter
	ProcExecCred  provider.Credential
	ProcExecModel string
	Planner       todo.Planner
	MemoryCtx     *memoryctx.Builder
	TurnSaver     memoryctx.TurnSaver
}

var fsVerb = regexp.MustCompile(`(?i)\b(create|write|append|delete|remove|mkdir)\b`)
var pathToken = regexp.MustCompile(`(?i)(~/|\./|\.\./|/)[^\s]*`)

// Run executes one user prompt end to end and reports through activity.
func (p *Pipeline) Run(ctx context.Context, prompt string, actor string, activity Activity) {
	kind := intent.Classify(prompt)
	session := p.Log.Begin(actor, prompt)

	switch kind {
	case intent.FsIntent:
		p.runFsIntent(ctx, prompt, session, activity)
	case intent.ShellIntent:
		p.runShellIntent(ctx, prompt, session, activity)
	case intent.TodoOrchestration:
		p.runTodo(ctx, prompt, session, activity)
	case intent.SystemExecution:
		p.runSystemExecution(ctx, prompt, session, activity)
	default:
		p.runChat(ctx, prompt, session, activity)
	}
}

func (p *Pipeline) runFsIntent(ctx context.Context, prompt string, session *executorlog.Session, activity Activity) {
	verb, path := parseFsIntent(prompt)
	if path == "" {
		p.Log.Fail("fs-intent: no path token found in prompt")
		activity.Denied("no path token found")
		return
	}
	absPath := path
	if !filepath.IsAbs(absPath) {
		absPath = filepath.Join(p.Host.GetCWD(), absPath)
	}

	cfg := p.PolicyStore.Get()
	decision := policy.EvaluateFsIntent(fsIntentKindFor(verb), absPath, prompt, cfg)
	if !decision.Allowed {
		p.Log.Fail(decision.Reason)
		activity.Denied(decision.Reason)
		return
	}
	if decision.RequiresConfirmation {
		p.Log.Emit(executorlog.System, "awaiting confirmation", decision.ConfirmHint)
		activity.Denied(decision.Reason + ": " + decision.ConfirmHint)
		return
	}

	var err error
	switch verb {
	case "create", "mkdir":
		err = p.Host.Mkdir(absPath)
	case "delete", "remove":
		err = p.Host.Remove(absPath)
	default:
		err = p.Host.WriteFile(absPath, []byte(""))
	}
	if err != nil {
		p.Log.Fail(err.Error())
		activity.Result(fmt.Sprintf("error: %s", err.Error()))
		return
	}
	p.Log.Emit(executorlog.System, "fs-intent", absPath)
	p.Log.Complete(absPath)
	activity.Result(fmt.Sprintf("done: %s", absPath))
}

func fsIntentKindFor(verb string) policy.FsIntentKind {
	switch verb {
	case "create", "mkdir":
		return policy.CreateFolder
	case "write", "append":
		return policy.WriteFile
	default:
		return policy.CreateFile
	}
}

func parseFsIntent(prompt string) (verb, path string) {
	vm := fsVerb.FindString(prompt)
	pm := pathToken.FindString(prompt)
	if vm == "" || pm == "" {
		return "", ""
	}
	return strings.ToLower(vm), strings.TrimSpace(pm)
}

func (p *Pipeline) runShellIntent(ctx context.Context, prompt string, session *executorlog.Session, activity Activity) {
	command := extractShellCommand(prompt)
	cfg := p.PolicyStore.Get()
	decision := policy.EvaluateCommand(command, prompt, cfg)
	if !decision.Allowed {
		p.Log.Fail(decision.Reason)
		activity.Denied(decision.Reason)
		return
	}
	if decision.RequiresConfirmation {
		activity.Denied(decision.Reason + ": " + decision.ConfirmHint)
		return
	}

	p.Log.Emit(executorlog.System, "running command", command)
	result, err := p.Host.ExecuteCommand(ctx, command, false, func(line string) {
		stage := ClassifyProgressLine(line)
		p.Log.Emit(executorlog.Stdout, string(stage), line)
		activity.Progress(stage, line)
	})
	if err != nil && result.ExitCode == 0 {
		p.Log.Fail(err.Error())
		activity.Result(fmt.Sprintf("error: %s", err.Error()))
		return
	}

	tail := result.Output
	if len(tail) > shellOutputTailLimit {
		tail = tail[len(tail)-shellOutputTailLimit:]
	}
	status := fmt.Sprintf("exit=%d duration=%.2fs\n%s", result.ExitCode, result.Duration, tail)
	p.Log.Complete(status)
	activity.Result(status)
}

func extractShellCommand(prompt string) string {
	trimmed := strings.TrimSpace(prompt)
	for _, prefix := range []string{"/cmd", "/run", "/shell", "/fs", "/executor"} {
		if strings.HasPrefix(strings.ToLower(trimmed), prefix) {
			return strings.TrimSpace(trimmed[len(prefix):])
		}
	}
	return strings.TrimPrefix(trimmed, "!")
}

func (p *Pipeline) runSystemExecution(ctx context.Context, prompt string, session *executorlog.Session, activity Activity) {
	if text, ok := p.runDirectCommand(ctx, prompt, activity); ok {
		p.Log.Complete(text)
		activity.Result(text)
		return
	}

	text, _, err := p.ProcExec.Invoke(ctx, p.ProcExecCred, p.ProcExecModel, prompt, provider.InvokeOptions{}, func(line string) {
		stage := ClassifyProgressLine(line)
		p.Log.Emit(executorlog.Stdout, string(stage), line)
		activity.Progress(stage, line)
	})
	if err != nil {
		p.Log.Fail(err.Error())
		activity.Result(fmt.Sprintf("error: %s", err.Error()))
		return
	}
	p.Log.Complete(text)
	activity.Result(text)
}

var versionPhrases = []string{"cli tool version", "runtime version"}

const installedPackagesPhrase = "installed packages"

// runDirectCommand implements §4.6 step 3(a)'s short inventory-lookup list by
// actually querying the host, rather than returning a canned string: the CLI
// tool/runtime version comes straight from the running binary, and the
// installed-packages lookup shells out to whichever package manager the host
// actually has.
func (p *Pipeline) runDirectCommand(ctx context.Context, prompt string, activity Activity) (string, bool) {
	lower := strings.ToLower(prompt)

	for _, phrase := range versionPhrases {
		if strings.Contains(lower, phrase) {
			return fmt.Sprintf("switchboard %s (%s %s/%s)", cliVersion, runtime.Version(), runtime.GOOS, runtime.GOARCH), true
		}
	}

	if strings.Contains(lower, installedPackagesPhrase) {
		result, err := p.Host.ExecuteCommand(ctx, packageInventoryCommand, false, func(line string) {
			activity.Progress(StageRunningCommand, line)
		})
		if err != nil && result.ExitCode == 0 {
			return fmt.Sprintf("error: %s", err.Error()), true
		}
		tail := result.Output
		if len(tail) > shellOutputTailLimit {
			tail = tail[len(tail)-shellOutputTailLimit:]
		}
		return tail, true
	}

	return "", false
}

func (p *Pipeline) runTodo(ctx context.Context, prompt string, session *executorlog.Session, activity Activity) {
	executor := todo.ProcExecExecutor{Adapter: p.ProcExec, Model: p.ProcExecModel, Cred: p.ProcExecCred}
	result, err := todo.RunTodo(ctx, prompt, p.Planner, executor)
	if err != nil {
		p.Log.Fail(err.Error())
		activity.Result(fmt.Sprintf("error: %s", err.Error()))
		return
	}
	p.Log.Complete(result)
	activity.Result(result)
}

func (p *Pipeline) runChat(ctx context.Context, prompt string, session *executorlog.Session, activity Activity) {
	routed := prompt
	if p.MemoryCtx != nil {
		prefix := p.MemoryCtx.BuildContext(prompt, func(note string) {
			p.Log.Emit(executorlog.System, "memory", note)
		})
		routed = prefix + prompt
	}

	result, err := p.Router.Route(ctx, routed, provider.InvokeOptions{}, activity, func(delta string) {
		p.Log.Emit(executorlog.Stdout, "thinking", delta)
	})
	if err != nil {
		p.Log.Fail(err.Error())
		activity.Result(fmt.Sprintf("error: %s", err.Error()))
		return
	}
	p.Log.Complete(result.Text)
	activity.Result(result.Text)

	if p.TurnSaver != nil {
		_ = p.TurnSaver.SaveTurn(prompt, result.Text)
	}
}
