package messenger

import (
	"testing"

	"github.com/go-telegram/bot/models"

	"github.com/switchboard-cli/switchboard/internal/config"
)

func TestMatchProviderPhraseSlash(t *testing.T) {
	id, rest, ok := matchProviderPhrase("/p3 summarize this doc")
	if !ok || id != config.P3 || rest != "summarize this doc" {
		t.Fatalf("got id=%v rest=%q ok=%v", id, rest, ok)
	}
}

func TestMatchProviderPhraseSlashNoPrompt(t *testing.T) {
	id, rest, ok := matchProviderPhrase("/p5")
	if !ok || id != config.P5 || rest != "" {
		t.Fatalf("got id=%v rest=%q ok=%v", id, rest, ok)
	}
}

func TestMatchProviderPhraseNatural(t *testing.T) {
	id, rest, ok := matchProviderPhrase("use p1 to research this topic")
	if !ok || id != config.P1 || rest != "to research this topic" {
		t.Fatalf("got id=%v rest=%q ok=%v", id, rest, ok)
	}
}

func TestMatchProviderPhraseNoneForPlainText(t *testing.T) {
	if _, _, ok := matchProviderPhrase("what time is it"); ok {
		t.Fatal("expected no provider phrase match")
	}
}

func TestHighestResolutionPhotoPrefersFileSize(t *testing.T) {
	sizes := []models.PhotoSize{
		{FileID: "small", Width: 90, Height: 90, FileSize: 1000},
		{FileID: "large", Width: 800, Height: 600, FileSize: 50000},
		{FileID: "mid", Width: 320, Height: 240, FileSize: 9000},
	}
	best := highestResolutionPhoto(sizes)
	if best.FileID != "large" {
		t.Fatalf("expected the largest file_size to win, got %q", best.FileID)
	}
}

func TestChatStatesLifecycle(t *testing.T) {
	cs := newChatStates()
	if got := cs.get(1); got.Mode != ModeAuto {
		t.Fatalf("expected default mode auto, got %v", got.Mode)
	}
	cs.set(1, ChatState{Mode: ModeLocked, Provider: config.P2})
	if got := cs.get(1); got.Mode != ModeLocked || got.Provider != config.P2 {
		t.Fatalf("unexpected state after set: %+v", got)
	}
	cs.clear(1)
	if got := cs.get(1); got.Mode != ModeAuto {
		t.Fatalf("expected clear to reset to auto, got %v", got.Mode)
	}
}
