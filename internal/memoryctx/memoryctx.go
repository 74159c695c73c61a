// Package memoryctx composes the prompt-prefix a chat turn is enriched
// with (§4.10), from external memory/session collaborators. It never fails
// the caller: any collaborator error is swallowed and the prompt passes
// through unchanged.
package memoryctx

import (
	"regexp"
	"strings"

	"github.com/switchboard-cli/switchboard/internal/intent"
)

const (
	defaultSessionTailCap   = 1800
	shipFasterSessionTailCap = 2600
)

var memoryKeyword = regexp.MustCompile(`(?i)\b(memory|remember|recall)\b`)
var sessionRecallKeyword = regexp.MustCompile(`(?i)\b(previous|continue|resume|last)\b`)

// MemoryExcerpt is one ranked saved-memory hit.
type MemoryExcerpt struct {
	Text string
	Rank float64
}

// MemorySearcher ranks saved memories by keyword overlap + recency bonus.
type MemorySearcher interface {
	SearchMemories(prompt string, limit int) ([]MemoryExcerpt, error)
}

// RuleSearcher surfaces agent-rule excerpts relevant to the prompt.
type RuleSearcher interface {
	SearchRules(prompt string, limit int) ([]string, error)
}

// SessionTailer returns the trailing slice of the active session's turns.
type SessionTailer interface {
	SessionTail(maxChars int) (string, error)
}

// TurnSaver persists one completed prompt/response turn so a later prompt's
// SessionTailer lookup can recall it. The router's data flow (§2) names this
// as the seam a successful completion feeds into; substantive long-term
// memory persistence beyond the session tail is out of scope (spec.md §1).
type TurnSaver interface {
	SaveTurn(prompt, response string) error
}

// ActivityCallback narrates which collaborator is being consulted, mirroring
// the rest of the pipeline's activity narration.
type ActivityCallback func(note string)

// Builder composes BuildContext from its three collaborators.
type Builder struct {
	Memories       MemorySearcher
	Rules          RuleSearcher
	Session        SessionTailer
	ShipFasterMode bool
}

// BuildContext implements §4.10's four-way branch.
func (b *Builder) BuildContext(prompt string, activity ActivityCallback) string {
	if activity == nil {
		activity = func(string) {}
	}

	if intent.IsBriefGreeting(prompt) {
		return ""
	}

	switch {
	case memoryKeyword.MatchString(prompt):
		return b.buildMemoryContext(prompt, activity)
	case sessionRecallKeyword.MatchString(prompt):
		return b.buildSessionOnlyContext(activity)
	default:
		return b.buildDefaultContext(activity)
	}
}

func (b *Builder) buildMemoryContext(prompt string, activity ActivityCallback) string {
	var parts []string

	if b.Memories != nil {
		activity("searching saved memories")
		if excerpts, err := b.Memories.SearchMemories(prompt, 5); err == nil {
			for _, e := range excerpts {
				parts = append(parts, "memory: "+e.Text)
			}
		}
	}

	if b.Rules != nil {
		activity("searching agent rules")
		if rules, err := b.Rules.SearchRules(prompt, 3); err == nil {
			for _, r := range rules {
				parts = append(parts, "rule: "+r)
			}
		}
	}

	if b.Session != nil {
		if tail, err := b.Session.SessionTail(b.tailCap()); err == nil && tail != "" {
			parts = append(parts, "recent session:\n"+tail)
		}
	}

	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, "\n\n") + "\n\n"
}

func (b *Builder) buildSessionOnlyContext(activity ActivityCallback) string {
	if b.Session == nil {
		return ""
	}
	activity("attaching session tail")
	tail, err := b.Session.SessionTail(b.tailCap())
	if err != nil || tail == "" {
		return ""
	}
	return "recent session:\n" + tail + "\n\n"
}

func (b *Builder) buildDefaultContext(activity ActivityCallback) string {
	if b.Session == nil {
		return ""
	}
	activity("attaching recent session tail")
	tail, err := b.Session.SessionTail(b.tailCap())
	if err != nil || tail == "" {
		return ""
	}
	return "recent session:\n" + tail + "\n\n"
}

func (b *Builder) tailCap() int {
	if b.ShipFasterMode {
		return shipFasterSessionTailCap
	}
	return defaultSessionTailCap
}
