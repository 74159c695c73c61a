package eval

import "testing"

func TestExpectationContains(t *testing.T) {
	if _, ok := (Expectation{Contains: "hello"}).Check("say hello world"); !ok {
		t.Fatal("expected contains check to pass")
	}
	if _, ok := (Expectation{Contains: "goodbye"}).Check("say hello world"); ok {
		t.Fatal("expected contains check to fail")
	}
}

func TestExpectationNotContains(t *testing.T) {
	if _, ok := (Expectation{NotContains: "error"}).Check("all good"); !ok {
		t.Fatal("expected notContains check to pass")
	}
	if _, ok := (Expectation{NotContains: "error"}).Check("an error occurred"); ok {
		t.Fatal("expected notContains check to fail")
	}
}

func TestExpectationRegex(t *testing.T) {
	if _, ok := (Expectation{Regex: `^\d+ items$`}).Check("42 items"); !ok {
		t.Fatal("expected regex check to pass")
	}
	if _, ok := (Expectation{Regex: `^\d+ items$`}).Check("forty-two items"); ok {
		t.Fatal("expected regex check to fail")
	}
}

func TestRunScoresPassRateAndBlocked(t *testing.T) {
	cases := []EvalCase{
		{ID: "a", Prompt: "p1", Expectations: []Expectation{{Contains: "ok"}}},
		{ID: "b", Prompt: "p2", Expectations: []Expectation{{Contains: "ok"}}},
		{ID: "c", Prompt: "p3", Expectations: []Expectation{{Contains: "ok"}}},
	}
	invoke := func(c EvalCase) (string, string, string, int64, bool, error) {
		switch c.ID {
		case "a":
			return "ok result", "p1", "m1", 100, false, nil
		case "b":
			return "not matching", "p1", "m1", 120, false, nil
		default:
			return "", "", "", 0, true, nil
		}
	}
	run := Run(cases, 0.8, invoke)
	if run.Blocked != 1 {
		t.Fatalf("expected 1 blocked case, got %d", run.Blocked)
	}
	if run.Failed != 2 {
		t.Fatalf("expected 2 failed cases (1 mismatch + 1 blocked), got %d", run.Failed)
	}
	want := 1.0 / 3.0
	if run.PassRate != want {
		t.Fatalf("expected passRate %v, got %v", want, run.PassRate)
	}
}
