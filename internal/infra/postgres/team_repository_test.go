package postgres

import (
	"testing"
	"time"
)

type rowFunc func(dest ...interface{}) error

func (f rowFunc) Scan(dest ...interface{}) error { return f(dest...) }

func TestScanTeamDecodesJSONColumns(t *testing.T) {
	registered := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	row := rowFunc(func(dest ...interface{}) error {
		*dest[0].(*string) = "t1"
		*dest[1].(*string) = "a@x.com"
		*dest[2].(*string) = "secret1"
		*dest[3].(*string) = "Alpha"
		*dest[4].(*[]byte) = []byte(`["Ann","Bo"]`)
		*dest[5].(*string) = "10.0.0.1"
		*dest[6].(*time.Time) = registered
		*dest[8].(*[]byte) = []byte(`{"q1":2}`)
		*dest[9].(*int) = 1
		*dest[10].(*bool) = true
		at := registered.Add(time.Minute)
		*dest[11].(**time.Time) = &at
		*dest[12].(*[]byte) = []byte(`["q2","q1"]`)
		return nil
	})

	team, err := scanTeam(row)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(team.Members) != 2 || team.Answers["q1"] != 2 || team.QuestionOrder[0] != "q2" {
		t.Fatalf("unexpected decode %+v", team)
	}
	if !team.LastLogin.IsZero() || !team.SubmittedAt.Equal(registered.Add(time.Minute)) {
		t.Fatalf("unexpected timestamps %+v", team)
	}
}

func TestNullTime(t *testing.T) {
	if nullTime(time.Time{}) != nil {
		t.Fatalf("expected zero time stored as NULL")
	}
	now := time.Now()
	if got := nullTime(now); got == nil || !got.Equal(now) {
		t.Fatalf("expected time preserved")
	}
}
