package app_test

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"testing"
	"time"

	"team-quiz-service/internal/app"
	"team-quiz-service/internal/domain"
)

func TestShuffleIsPermutation(t *testing.T) {
	bank := make([]domain.Question, 10)
	for i := range bank {
		bank[i] = domain.Question{ID: string(rune('a' + i))}
	}
	s := app.NewShuffler(rand.NewSource(42))

	moved := false
	for round := 0; round < 5; round++ {
		out := app.QuestionIDs(s.Shuffle(bank))
		if len(out) != len(bank) {
			t.Fatalf("expected %d ids, got %d", len(bank), len(out))
		}
		sorted := append([]string(nil), out...)
		sort.Strings(sorted)
		for i, id := range sorted {
			if id != bank[i].ID {
				t.Fatalf("expected a permutation, got %v", out)
			}
		}
		for i, id := range out {
			if id != bank[i].ID {
				moved = true
			}
		}
	}
	if !moved {
		t.Fatalf("expected at least one shuffle to reorder the bank")
	}
	if bank[0].ID != "a" || bank[9].ID != "j" {
		t.Fatalf("expected input left untouched")
	}
	if out := s.Shuffle(nil); len(out) != 0 {
		t.Fatalf("expected empty shuffle for empty bank")
	}
}

func TestProjectOrderDropsMissing(t *testing.T) {
	bank := []domain.Question{{ID: "q1"}, {ID: "q3"}, {ID: "q4"}}
	got := app.QuestionIDs(app.ProjectOrder([]string{"q3", "q2", "q1"}, bank))
	if len(got) != 2 || got[0] != "q3" || got[1] != "q1" {
		t.Fatalf("unexpected projection %v", got)
	}
}

func TestScoreIgnoresOrderAndMissing(t *testing.T) {
	bank := sampleBank()
	answers := domain.Answers{"q1": 0, "q2": 3, "gone": 1}
	reversed := []domain.Question{bank[2], bank[1], bank[0]}

	if a, b := app.Score(bank, answers), app.Score(reversed, answers); a != 1 || b != 1 {
		t.Fatalf("expected order-independent score of 1, got %d and %d", a, b)
	}
	if got := app.Score(bank, nil); got != 0 {
		t.Fatalf("expected zero for no answers, got %d", got)
	}
}

func TestBuildLeaderboardOrdering(t *testing.T) {
	teams := []domain.Team{
		{ID: "1", TeamName: "Late", Score: 2, Submitted: true, SubmittedAt: epoch.Add(time.Minute)},
		{ID: "2", TeamName: "Pending", Score: 2},
		{ID: "3", TeamName: "Early", Score: 2, Submitted: true, SubmittedAt: epoch},
		{ID: "4", TeamName: "Top", Score: 3, Submitted: true, SubmittedAt: epoch.Add(time.Hour)},
	}
	lb := app.BuildLeaderboard(teams, 5, epoch)

	var names []string
	for _, e := range lb.Entries {
		names = append(names, e.TeamName)
	}
	want := []string{"Top", "Early", "Late", "Pending"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, names)
		}
	}
	if lb.Total != 5 || !lb.UpdatedAt.Equal(epoch) {
		t.Fatalf("unexpected leaderboard metadata %+v", lb)
	}
}

func TestAdminService(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if err := f.admin.Authorize("wrong"); !errors.Is(err, domain.ErrWrongPassphrase) {
		t.Fatalf("expected wrong passphrase, got %v", err)
	}
	unset := app.NewAdminService(f.questions, f.teams, f.clock, "")
	if err := unset.Authorize(""); !errors.Is(err, domain.ErrWrongPassphrase) {
		t.Fatalf("expected unset passphrase to deny, got %v", err)
	}

	state, err := f.admin.Start(ctx, 60)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !state.Active || !state.EndTime.Equal(epoch.Add(time.Hour)) || state.Duration != time.Hour {
		t.Fatalf("unexpected clock %+v", state)
	}
	if _, err := f.admin.Start(ctx, -5); !errors.Is(err, domain.ErrInvalidDuration) {
		t.Fatalf("expected invalid duration, got %v", err)
	}

	if _, err := f.admin.AddQuestion(ctx, domain.QuestionDraft{Question: "x", Options: []string{"1", "2"}}); !errors.Is(err, domain.ErrIncompleteQuestion) {
		t.Fatalf("expected incomplete question, got %v", err)
	}
	q, err := f.admin.AddQuestion(ctx, domain.QuestionDraft{Question: "x", Options: []string{"1", "2", "3", "4"}, CorrectAnswer: 1})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if q.ID == "" || !q.CreatedAt.Equal(epoch) {
		t.Fatalf("expected id and creation time assigned, got %+v", q)
	}
	if err := f.admin.DeleteQuestion(ctx, "missing"); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	_, _ = f.teams.Create(ctx, domain.Team{TeamName: "Alpha"})
	standings, err := f.admin.Standings(ctx)
	if err != nil {
		t.Fatalf("standings: %v", err)
	}
	if len(standings.Entries) != 1 || standings.Total != 1 {
		t.Fatalf("unexpected standings %+v", standings)
	}

	if err := f.admin.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	clock, _ := f.admin.Clock(ctx)
	if clock.Active || !clock.EndTime.IsZero() {
		t.Fatalf("expected stopped clock, got %+v", clock)
	}
}
