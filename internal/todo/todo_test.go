package todo

import "testing"

func TestParsePlanToleratesFencedCodeBlock(t *testing.T) {
	raw := "```json\n{\"tasks\": [\"clone repo\", {\"title\": \"run tests\"}]}\n```"
	titles := parsePlan(raw)
	if len(titles) != 2 || titles[0] != "clone repo" || titles[1] != "run tests" {
		t.Fatalf("unexpected titles: %v", titles)
	}
}

func TestParsePlanLooseJSON(t *testing.T) {
	titles := parsePlan(`{"tasks": ["a", "b", "c"]}`)
	if len(titles) != 3 {
		t.Fatalf("expected 3 tasks, got %v", titles)
	}
}

func TestParsePlanMalformedReturnsNil(t *testing.T) {
	if titles := parsePlan("not json at all"); titles != nil {
		t.Fatalf("expected nil for malformed plan, got %v", titles)
	}
}

func TestFallbackPlanSplitsOnImperativeVerbs(t *testing.T) {
	tasks := fallbackPlan("create a new folder then install dependencies then run the tests")
	if len(tasks) < 2 {
		t.Fatalf("expected at least 2 tasks, got %v", tasks)
	}
}

func TestFallbackPlanSingleVerbStaysWhole(t *testing.T) {
	tasks := fallbackPlan("build the project")
	if len(tasks) != 1 {
		t.Fatalf("expected a single task when only one imperative verb is present, got %v", tasks)
	}
}
