package migrations

import (
	"context"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

const createQuizTablesSQL = `
CREATE TABLE IF NOT EXISTS quizzes (
	quiz_id            TEXT PRIMARY KEY,
	title              TEXT NOT NULL DEFAULT '',
	total_time_seconds INTEGER NOT NULL DEFAULT 0,
	first_question_id  TEXT NOT NULL,
	is_published       BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS questions (
	quiz_id          TEXT NOT NULL,
	question_id      TEXT NOT NULL,
	correct_answers  TEXT NOT NULL,
	points           INTEGER NOT NULL DEFAULT 0,
	next_question_id TEXT NOT NULL,
	PRIMARY KEY (quiz_id, question_id)
);

CREATE TABLE IF NOT EXISTS user_progress (
	quiz_id             TEXT NOT NULL,
	user_id             TEXT NOT NULL,
	display_name        TEXT NOT NULL DEFAULT '',
	score               INTEGER NOT NULL DEFAULT 0,
	current_question_id TEXT NOT NULL,
	started_at          TIMESTAMPTZ NOT NULL,
	updated_at          TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (quiz_id, user_id)
);

CREATE TABLE IF NOT EXISTS user_answers (
	quiz_id     TEXT NOT NULL,
	user_id     TEXT NOT NULL,
	question_id TEXT NOT NULL,
	answered_at TIMESTAMPTZ NOT NULL,
	answers     TEXT NOT NULL,
	PRIMARY KEY (quiz_id, user_id, question_id, answered_at)
);
`

// Migrations holds every schema change for the postgres row store.
var Migrations = migrate.NewMigrations()

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, createQuizTablesSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS user_answers, user_progress, questions, quizzes`)
			return err
		},
	)
}
