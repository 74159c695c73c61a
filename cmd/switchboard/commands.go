package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/switchboard-cli/switchboard/internal/config"
	"github.com/switchboard-cli/switchboard/internal/pipeline"
)

// replActivity renders a Pipeline.Run narration to the terminal: progress
// lines print inline as they arrive, and the final result is rendered as
// markdown through glamour, mirroring the teacher's chat-render pattern.
type replActivity struct {
	renderer *glamour.TermRenderer
}

func (a *replActivity) StartActivity(actor string) {}

func (a *replActivity) Progress(stage pipeline.ProgressStage, line string) {
	fmt.Printf("  [%s] %s\n", stage, line)
}

func (a *replActivity) Result(text string) {
	if a.renderer != nil {
		if out, err := a.renderer.Render(text); err == nil {
			fmt.Println(strings.Repeat("─", 50))
			fmt.Print(out)
			fmt.Println(strings.Repeat("─", 50))
			return
		}
	}
	fmt.Println(text)
}

func (a *replActivity) Denied(reason string) {
	fmt.Printf("blocked: %s\n", reason)
}

func newChatCmd(ctx context.Context, a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		Run: func(cmd *cobra.Command, args []string) {
			runREPL(ctx, a)
		},
	}
}

func runREPL(ctx context.Context, a *app) {
	renderer, _ := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	activity := &replActivity{renderer: renderer}

	reader := bufio.NewReader(os.Stdin)
	fmt.Println("switchboard ready. Type your message, or /exit to quit.")
	fmt.Println(strings.Repeat("─", 50))

	for {
		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if handleSlashCommand(a, line) {
				return
			}
			continue
		}

		a.pipeline.Run(ctx, line, "cli", activity)
	}
}

// handleSlashCommand implements the §6 CLI command surface. It returns true
// when the REPL should exit.
func handleSlashCommand(a *app, line string) bool {
	fields := strings.Fields(line)
	cmd := strings.ToLower(fields[0])
	rest := fields[1:]

	switch cmd {
	case "/exit":
		return true
	case "/clear":
		fmt.Println("(conversation context cleared)")
	case "/back", "/b":
		if err := a.routerStore.Update(func(c *config.RouterConfig) { c.SelectedOverride = config.SelectedOverride{} }); err != nil {
			fmt.Println("error:", err)
		} else {
			fmt.Println("back to auto routing")
		}
	case "/ai":
		handleAI(a, rest)
	case "/model":
		handleModel(a, rest)
	case "/connect":
		fmt.Println("credential storage is managed via SWITCHBOARD_<PROVIDER>_API_KEY environment variables")
	case "/skills":
		fmt.Println("(no skills configured)")
	case "/telegram":
		handleTelegram(a)
	case "/executor":
		handleExecutor(a, rest)
	case "/scheduler":
		handleScheduler(a, rest)
	case "/policy":
		handlePolicy(a, rest)
	case "/eval":
		handleEval(a, rest)
	case "/stats":
		printStats(a)
	default:
		fmt.Printf("unknown command: %s\n", cmd)
	}
	return false
}

func handleAI(a *app, args []string) {
	if len(args) == 0 {
		cfg := a.routerStore.Get()
		fmt.Printf("default provider: %s, override: %v\n", cfg.DefaultProvider, cfg.SelectedOverride)
		return
	}
	id := config.ProviderId(strings.ToLower(args[0]))
	if err := a.routerStore.Update(func(c *config.RouterConfig) {
		c.SelectedOverride = config.SelectedOverride{Enabled: true, Provider: id, Mode: config.ModeAuto}
	}); err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Printf("locked to %s\n", id)
}

func handleModel(a *app, args []string) {
	if len(args) < 2 {
		fmt.Println("usage: /model <provider> <modelId>")
		return
	}
	id := config.ProviderId(strings.ToLower(args[0]))
	modelID := args[1]
	if err := a.routerStore.Update(func(c *config.RouterConfig) {
		entry := c.Providers[id]
		entry.Mode = config.ModeFixed
		entry.FixedModelId = modelID
		c.Providers[id] = entry
	}); err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Printf("%s pinned to model %s\n", id, modelID)
}

func handleTelegram(a *app) {
	if os.Getenv("SWITCHBOARD_TELEGRAM_TOKEN") == "" {
		fmt.Println("SWITCHBOARD_TELEGRAM_TOKEN is not set; the messenger bot is not running")
		return
	}
	fmt.Println("telegram bot is running; live-run dashboard:", a.liveServer.ShareLink(""))
}

func handleExecutor(a *app, args []string) {
	if len(args) > 0 && strings.EqualFold(args[0], "all") {
		if sess, ok := a.logMgr.Last(); ok {
			for _, ev := range sess.Events {
				fmt.Printf("[%s] %s\n", ev.Source, ev.Summary)
			}
			return
		}
		fmt.Println("no executor session recorded yet")
		return
	}
	if sess, ok := a.logMgr.Active(); ok {
		fmt.Printf("active: %s (%s)\n", sess.Objective, sess.Status)
		return
	}
	if sess, ok := a.logMgr.Last(); ok {
		fmt.Printf("last: %s (%s)\n", sess.Objective, sess.Status)
		return
	}
	fmt.Println("no executor session recorded yet")
}

func handleScheduler(a *app, args []string) {
	if len(args) == 0 {
		cfg := a.schedulerStore.Get()
		budget := "none"
		if cfg.MaxUsdPerTask != nil {
			budget = fmt.Sprintf("$%.2f", *cfg.MaxUsdPerTask)
		}
		fmt.Printf("enabled=%v quality=%s budget=%s\n", cfg.Enabled, cfg.QualityTarget, budget)
		printStats(a)
		return
	}
	switch strings.ToLower(args[0]) {
	case "on":
		a.schedulerStore.Update(func(c *config.SchedulerConfig) { c.Enabled = true })
	case "off":
		a.schedulerStore.Update(func(c *config.SchedulerConfig) { c.Enabled = false })
	case "quality":
		if len(args) < 2 {
			fmt.Println("usage: /scheduler quality <e|b|h>")
			return
		}
		var target config.QualityTarget
		switch strings.ToLower(args[1]) {
		case "e", "economy":
			target = config.QualityEconomy
		case "h", "high":
			target = config.QualityHigh
		default:
			target = config.QualityBalanced
		}
		a.schedulerStore.Update(func(c *config.SchedulerConfig) { c.QualityTarget = target })
	case "budget":
		if len(args) < 2 {
			fmt.Println("usage: /scheduler budget <usd|none>")
			return
		}
		if strings.EqualFold(args[1], "none") {
			a.schedulerStore.Update(func(c *config.SchedulerConfig) { c.MaxUsdPerTask = nil })
		} else if usd, err := strconv.ParseFloat(args[1], 64); err == nil {
			a.schedulerStore.Update(func(c *config.SchedulerConfig) { c.MaxUsdPerTask = &usd })
		} else {
			fmt.Println("invalid budget:", args[1])
		}
	case "reset":
		a.schedulerStore.Update(func(c *config.SchedulerConfig) { *c = *config.DefaultSchedulerConfig() })
	default:
		fmt.Println("unknown scheduler subcommand:", args[0])
		return
	}
	fmt.Println("ok")
}

func handlePolicy(a *app, args []string) {
	if len(args) == 0 {
		cfg := a.policyStore.Get()
		fmt.Printf("enabled=%v mode=%s readOnlyWorkspace=%v confirm=%+v blocked=%v\n",
			cfg.Enabled, cfg.Mode, cfg.ReadOnlyWorkspace, cfg.RequireConfirmation, cfg.BlockedCommandPatterns)
		return
	}
	switch strings.ToLower(args[0]) {
	case "strict", "balanced", "relaxed":
		mode := config.PolicyMode(strings.ToLower(args[0]))
		a.policyStore.Update(func(c *config.PolicyConfig) { c.ApplyModeDefaults(mode) })
	case "on":
		a.policyStore.Update(func(c *config.PolicyConfig) { c.Enabled = true })
	case "off":
		a.policyStore.Update(func(c *config.PolicyConfig) { c.Enabled = false })
	case "confirm":
		if len(args) < 3 {
			fmt.Println("usage: /policy confirm <target> <on|off>")
			return
		}
		target := strings.ToLower(args[1])
		on := strings.EqualFold(args[2], "on")
		a.policyStore.Update(func(c *config.PolicyConfig) {
			switch target {
			case "download":
				c.RequireConfirmation.Download = on
			case "install":
				c.RequireConfirmation.Install = on
			case "deploy":
				c.RequireConfirmation.Deploy = on
			case "workspace-write":
				c.RequireConfirmation.WorkspaceWrite = on
			}
		})
	case "block":
		if len(args) < 2 {
			fmt.Println("usage: /policy block <regex>")
			return
		}
		pattern := strings.Join(args[1:], " ")
		a.policyStore.Update(func(c *config.PolicyConfig) {
			c.BlockedCommandPatterns = append(c.BlockedCommandPatterns, pattern)
		})
	case "unblock":
		if len(args) < 2 {
			fmt.Println("usage: /policy unblock <regex>")
			return
		}
		pattern := strings.Join(args[1:], " ")
		a.policyStore.Update(func(c *config.PolicyConfig) {
			var kept []string
			for _, p := range c.BlockedCommandPatterns {
				if p != pattern {
					kept = append(kept, p)
				}
			}
			c.BlockedCommandPatterns = kept
		})
	case "reset":
		a.policyStore.Update(func(c *config.PolicyConfig) { *c = *config.DefaultPolicyConfig(a.cwd) })
	default:
		fmt.Println("unknown policy subcommand:", args[0])
		return
	}
	fmt.Println("ok")
}

func newEvalCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Run and inspect the eval harness",
		Run: func(cmd *cobra.Command, args []string) {
			handleEval(a, args)
		},
	}
	return cmd
}

func handleEval(a *app, args []string) {
	if len(args) == 0 {
		fmt.Println("usage: /eval [init|run|leaderboard|trend|unblock]")
		return
	}
	switch strings.ToLower(args[0]) {
	case "init":
		fmt.Println("no eval cases configured; add EvalCase entries to begin")
	case "run":
		runs, err := a.evalHistory.Tail(1)
		if err != nil {
			fmt.Println("error:", err)
			return
		}
		if len(runs) == 0 {
			fmt.Println("no eval cases configured")
			return
		}
		last := runs[len(runs)-1]
		fmt.Printf("last run: passRate=%.2f failed=%d blocked=%d\n", last.PassRate, last.Failed, last.Blocked)
	case "leaderboard":
		rows, err := a.telemetryStore.Leaderboard(20)
		if err != nil {
			fmt.Println("error:", err)
			return
		}
		for _, r := range rows {
			fmt.Printf("%-4s %-20s runs=%-4d success=%.0f%% avgCost=$%.4f avgLatency=%.0fms\n",
				r.Provider, r.Model, r.Runs, r.SuccessRate*100, r.AvgCost, r.AvgLatency)
		}
	case "trend":
		rates, err := a.evalHistory.Trend(20)
		if err != nil {
			fmt.Println("error:", err)
			return
		}
		for i, r := range rates {
			fmt.Printf("run %d: %.2f\n", i+1, r)
		}
	case "unblock":
		fmt.Println("(no blocked eval cases to unblock)")
	default:
		fmt.Println("unknown eval subcommand:", args[0])
	}
}

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show provider leaderboard and router state",
		Run: func(cmd *cobra.Command, args []string) {
			printStats(a)
		},
	}
}

func printStats(a *app) {
	rows, err := a.telemetryStore.Leaderboard(20)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	if len(rows) == 0 {
		fmt.Println("no telemetry recorded yet")
		return
	}
	for _, r := range rows {
		fmt.Printf("%-4s %-20s runs=%-4d success=%.0f%% avgCost=$%.4f avgLatency=%.0fms\n",
			r.Provider, r.Model, r.Runs, r.SuccessRate*100, r.AvgCost, r.AvgLatency)
	}
}
