package cli

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"team-quiz-service/internal/domain"
)

func TestTerminalConfirmer(t *testing.T) {
	prompt := domain.Prompt{Title: "Stop Quiz?", Text: "Sure?"}
	cases := map[string]bool{"y\n": true, "YES\n": true, "n\n": false, "\n": false, "": false}
	for input, want := range cases {
		var out bytes.Buffer
		c := &terminalConfirmer{in: bufio.NewReader(strings.NewReader(input)), out: &out}
		if got := c.Confirm(context.Background(), prompt); got != want {
			t.Fatalf("input %q: expected %v, got %v", input, want, got)
		}
		if !strings.Contains(out.String(), "Stop Quiz?") {
			t.Fatalf("expected prompt written, got %q", out.String())
		}
	}

	skip := &terminalConfirmer{yes: true}
	if !skip.Confirm(context.Background(), prompt) {
		t.Fatalf("expected --yes to confirm without reading")
	}
}

func TestAdminRequiresSharedStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("store:\n  driver: memory\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("STORE_DRIVER", "")

	root := newRootCmd()
	root.SetArgs([]string{"--config", path, "admin", "questions", "--passphrase", "x"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	if err := root.Execute(); !errors.Is(err, errSharedStoreRequired) {
		t.Fatalf("expected shared store error, got %v", err)
	}
}

func TestPrintStandings(t *testing.T) {
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	var out bytes.Buffer
	err := printStandings(&out, domain.Leaderboard{
		Total: 3,
		Entries: []domain.LeaderboardEntry{
			{TeamName: "Alpha", Score: 3, Submitted: true, SubmittedAt: at, Members: []string{"Ann", "Bo"}},
			{TeamName: "Beta", Score: 1},
		},
	})
	if err != nil {
		t.Fatalf("print: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 || !strings.Contains(lines[1], "3/3") || !strings.Contains(lines[2], "no") {
		t.Fatalf("unexpected table:\n%s", out.String())
	}
}

func TestPrintClock(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	var out bytes.Buffer
	printClock(&out, domain.ClockState{Active: true, EndTime: now.Add(90 * time.Second)}, now)
	if !strings.Contains(out.String(), "1m30s left") {
		t.Fatalf("unexpected clock output %q", out.String())
	}
	out.Reset()
	printClock(&out, domain.ClockState{}, now)
	if !strings.Contains(out.String(), "not running") {
		t.Fatalf("unexpected clock output %q", out.String())
	}
}
