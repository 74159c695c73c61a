package pipeline

import "testing"

func TestClassifyProgressLine(t *testing.T) {
	cases := map[string]ProgressStage{
		"Running command: go build ./...": StageRunningCommand,
		"Reading file main.go":             StageReadingFiles,
		"Writing file output.txt":          StageWritingFiles,
		"Applying patch to server.go":      StageApplyingPatch,
		"Searching https://example.com":    StageSearchingWeb,
		"Planning next steps":              StagePlanning,
		"Thinking about the approach":      StageThinking,
		"Error: connection refused":        StageError,
		"All done":                         StageFinalizing,
	}
	for line, want := range cases {
		if got := ClassifyProgressLine(line); got != want {
			t.Errorf("ClassifyProgressLine(%q) = %q, want %q", line, got, want)
		}
	}
}

func TestParseFsIntent(t *testing.T) {
	verb, path := parseFsIntent("create a file ./notes/todo.md please")
	if verb != "create" || path != "./notes/todo.md" {
		t.Fatalf("got verb=%q path=%q", verb, path)
	}

	verb, path = parseFsIntent("delete ~/scratch/old.log")
	if verb != "delete" || path != "~/scratch/old.log" {
		t.Fatalf("got verb=%q path=%q", verb, path)
	}

	if verb, path := parseFsIntent("what time is it"); verb != "" || path != "" {
		t.Fatalf("expected empty result for non-fs prompt, got verb=%q path=%q", verb, path)
	}
}

func TestExtractShellCommand(t *testing.T) {
	if got := extractShellCommand("/cmd ls -la"); got != "ls -la" {
		t.Fatalf("got %q", got)
	}
	if got := extractShellCommand("!git status"); got != "git status" {
		t.Fatalf("got %q", got)
	}
}
