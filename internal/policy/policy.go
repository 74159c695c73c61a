// Package policy evaluates shell commands and filesystem intents against a
// configurable strict/balanced/relaxed policy.
package policy

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/switchboard-cli/switchboard/internal/config"
)

// Decision is the result of EvaluateCommand/EvaluateFsIntent.
type Decision struct {
	Allowed               bool
	RequiresConfirmation  bool
	Reason                string
	ConfirmHint           string
}

var harmfulPatterns = []*regexp.Regexp{
	regexp.MustCompile(`rm\s+-rf\s+/(\s|$)`),
	regexp.MustCompile(`:\(\)\s*\{\s*:\|\s*:\s*&\s*\}\s*;\s*:`),
	regexp.MustCompile(`mkfs(\.\w+)?\s`),
	regexp.MustCompile(`\bdd\b.+of=/dev/`),
	regexp.MustCompile(`\b(shutdown|reboot|poweroff|halt)\b`),
	regexp.MustCompile(`(curl|wget)\s.+\|\s*(sh|bash)\b`),
}

var writeVerbPattern = regexp.MustCompile(`\b(mkdir|touch|mv|cp|rm|chmod|chown|sed\s+-i|perl\s+-i|tee|truncate|dd)\b`)
var redirectPattern = regexp.MustCompile(`(>>?|\|\s*tee)`)

var installVerbPattern = regexp.MustCompile(`\b(apt(-get)?|yum|dnf|brew|pip|pip3|npm|yarn|pnpm|go)\s+(install|add)\b`)
var downloadVerbPattern = regexp.MustCompile(`\b(curl|wget|scp|rsync)\b`)
var deployVerbPattern = regexp.MustCompile(`\b(deploy|kubectl\s+apply|terraform\s+apply|docker\s+push)\b`)

var allowPhrases = []string{"allow download", "install permitted", "deploy ok"}

// EvaluateCommand implements the six-step policy algorithm (§4.3): builtin
// harmful patterns, configured blocklist, strict-mode confirmation gates,
// read-only-workspace write denial, then the general requireConfirmation
// gates. Evaluation short-circuits on the first hit.
func EvaluateCommand(command, promptContext string, cfg config.PolicyConfig) Decision {
	if !cfg.Enabled {
		return Decision{Allowed: true}
	}

	for _, re := range harmfulPatterns {
		if re.MatchString(command) {
			return Decision{Allowed: false, Reason: "harmful command"}
		}
	}

	for _, pattern := range cfg.BlockedCommandPatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			continue
		}
		if re.MatchString(command) {
			return Decision{Allowed: false, Reason: "blocked by configured pattern: " + pattern}
		}
	}

	if cfg.Mode == config.ModeStrict {
		isGated := installVerbPattern.MatchString(command) || downloadVerbPattern.MatchString(command) || deployVerbPattern.MatchString(command)
		if isGated && !hasAllowPhrase(promptContext) {
			return Decision{Allowed: true, RequiresConfirmation: true, Reason: "strict mode requires confirmation for install/download/deploy", ConfirmHint: "add one of: " + strings.Join(allowPhrases, ", ")}
		}
	}

	if cfg.ReadOnlyWorkspace {
		if writeVerbPattern.MatchString(command) || redirectPattern.MatchString(command) {
			if touchesProtectedRoot(command, cfg.ProtectedWorkspaceRoot) {
				return Decision{Allowed: false, Reason: "read-only workspace: command writes inside protected root"}
			}
		}
	}

	if target, hint, ok := requireConfirmationTarget(command, cfg); ok {
		return Decision{Allowed: true, RequiresConfirmation: true, Reason: "confirmation required for " + target, ConfirmHint: hint}
	}

	return Decision{Allowed: true}
}

// FsIntentKind is one of the filesystem intents EvaluateFsIntent accepts.
type FsIntentKind string

const (
	CreateFolder FsIntentKind = "create-folder"
	CreateFile   FsIntentKind = "create-file"
	WriteFile    FsIntentKind = "write-file"
)

// EvaluateFsIntent mirrors steps 1, 5, 6 of EvaluateCommand for a filesystem
// intent whose target path is path.
func EvaluateFsIntent(intent FsIntentKind, path string, promptContext string, cfg config.PolicyConfig) Decision {
	if !cfg.Enabled {
		return Decision{Allowed: true}
	}

	if cfg.ReadOnlyWorkspace && pathInside(path, cfg.ProtectedWorkspaceRoot) {
		return Decision{Allowed: false, Reason: "read-only workspace: " + string(intent) + " targets protected root"}
	}

	if cfg.RequireConfirmation.WorkspaceWrite {
		return Decision{Allowed: true, RequiresConfirmation: true, Reason: "confirmation required for workspace-write", ConfirmHint: "add: allow workspace write"}
	}

	return Decision{Allowed: true}
}

func hasAllowPhrase(promptContext string) bool {
	lower := strings.ToLower(promptContext)
	for _, phrase := range allowPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

func requireConfirmationTarget(command string, cfg config.PolicyConfig) (target, hint string, ok bool) {
	switch {
	case cfg.RequireConfirmation.Download && downloadVerbPattern.MatchString(command):
		return "download", "add: allow download", true
	case cfg.RequireConfirmation.Install && installVerbPattern.MatchString(command):
		return "install", "add: install permitted", true
	case cfg.RequireConfirmation.Deploy && deployVerbPattern.MatchString(command):
		return "deploy", "add: deploy ok", true
	case cfg.RequireConfirmation.WorkspaceWrite && (writeVerbPattern.MatchString(command) || redirectPattern.MatchString(command)):
		return "workspace-write", "add: allow workspace write", true
	}
	return "", "", false
}

// touchesProtectedRoot extracts path-looking tokens from command and checks
// whether any resolves inside root.
func touchesProtectedRoot(command, root string) bool {
	if root == "" {
		return false
	}
	sawPath := false
	for _, tok := range strings.Fields(command) {
		tok = strings.Trim(tok, "\"'")
		if tok == "" || strings.HasPrefix(tok, "-") {
			continue
		}
		if strings.HasPrefix(tok, "/") || strings.HasPrefix(tok, "./") || strings.HasPrefix(tok, "../") || strings.HasPrefix(tok, "~/") {
			sawPath = true
			if pathInside(tok, root) {
				return true
			}
		}
	}
	// No explicit path token: a bare write-verb/redirect with no path
	// argument is assumed to target the current (protected) workspace.
	return !sawPath
}

func pathInside(path, root string) bool {
	if root == "" {
		return false
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		absRoot = root
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && rel != "")
}
