package main

import (
	"context"
	"fmt"

	"github.com/switchboard-cli/switchboard/internal/provider"
	"github.com/switchboard-cli/switchboard/internal/router"
)

// planningMaxTokens caps the TODO orchestrator's planning request: it only
// needs a short JSON task list back, not a full answer.
const planningMaxTokens = 512

// routerPlanner implements todo.Planner by asking the default model, through
// the same router every chat prompt goes through, for a planning JSON.
// RunTodo runs the raw text back through its own parser and only trusts it
// if it yields at least two tasks, falling back to the deterministic planner
// otherwise.
type routerPlanner struct {
	router *router.Router
}

func (rp routerPlanner) Plan(ctx context.Context, objective string) (string, error) {
	prompt := fmt.Sprintf(
		"Break the following objective into a short list of task titles, as a JSON "+
			"object (e.g. {\"tasks\": [\"task one\", \"task two\"]}). Objective: %s", objective)
	result, err := rp.router.Route(ctx, prompt, provider.InvokeOptions{MaxTokens: planningMaxTokens}, nil, nil)
	if err != nil {
		return "", err
	}
	return result.Text, nil
}
