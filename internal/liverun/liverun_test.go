package liverun

import "testing"

func TestRegistryLifecycle(t *testing.T) {
	r := NewRegistry()
	r.Begin("run-1", "do the thing")
	r.Emit("run-1", "step one")
	r.Complete("run-1", "all done")

	run, ok := r.Get("run-1")
	if !ok {
		t.Fatal("expected run-1 to exist")
	}
	if run.Status != StatusCompleted || run.Result != "all done" {
		t.Fatalf("unexpected run state: %+v", run)
	}
	if len(run.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(run.Events))
	}
}

func TestRegistryEmitOnMissingRunIsNoop(t *testing.T) {
	r := NewRegistry()
	r.Emit("missing", "should not panic")
	if r.Count() != 0 {
		t.Fatalf("expected no runs to be created, got %d", r.Count())
	}
}

func TestShareLinkPrefersPublicBaseURL(t *testing.T) {
	r := NewRegistry()
	r.Begin("run-2", "test")
	s := &Server{Registry: r, Port: 4173, PublicBaseURL: "https://example.test"}
	link := s.ShareLink("run-2")
	if link != "https://example.test/telegram/live/run-2" {
		t.Fatalf("got %q", link)
	}
}

func TestShareLinkFallsBackToLoopback(t *testing.T) {
	r := NewRegistry()
	r.Begin("run-3", "test")
	s := &Server{Registry: r, Port: 4173}
	link := s.ShareLink("run-3")
	if link != "http://127.0.0.1:4173/telegram/live/run-3" {
		t.Fatalf("got %q", link)
	}
}

func TestAllLinksDeduped(t *testing.T) {
	r := NewRegistry()
	r.Begin("run-4", "test")
	s := &Server{Registry: r, Port: 4173, PublicBaseURL: "http://127.0.0.1:4173"}
	links := s.AllLinks("run-4")
	seen := map[string]int{}
	for _, l := range links {
		seen[l]++
	}
	for url, count := range seen {
		if count > 1 {
			t.Fatalf("expected %q to be deduped, appeared %d times", url, count)
		}
	}
}
