package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
)

//go:embed 0002_change_notify.sql
var changeNotifySQL string

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, changeNotifySQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, `
DROP TRIGGER IF EXISTS teams_notify_change ON teams;
DROP TRIGGER IF EXISTS questions_notify_change ON questions;
DROP TRIGGER IF EXISTS quiz_status_notify_change ON quiz_status;
DROP FUNCTION IF EXISTS quiz_notify_change();`)
			return err
		},
	)
}
