package migrations

import (
	"context"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx,
				`CREATE INDEX IF NOT EXISTS user_progress_ranking ON user_progress (quiz_id, score DESC, updated_at)`)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, `DROP INDEX IF EXISTS user_progress_ranking`)
			return err
		},
	)
}
