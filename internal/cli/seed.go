package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"quiz-gateway/internal/app"
	"quiz-gateway/internal/config"
	"quiz-gateway/internal/rowstore"
)

// NewSeedCmd writes the sample quiz into the configured row store.
func NewSeedCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert the sample quiz",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), *configPath)
		},
	}
}

func runSeed(ctx context.Context, configPath string) error {
	cfg, logger, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.RowStore.Driver == config.DriverMemory {
		return fmt.Errorf("seed needs a persistent row store; the memory driver seeds itself on start")
	}
	store, err := openRowStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	quiz, questions := sampleQuiz()
	err = app.SeedQuiz(ctx, store, quiz, questions)
	switch {
	case errors.Is(err, rowstore.ErrDuplicate):
		logger.WithField("quiz_id", quiz.ID).Info("sample quiz already present")
		return nil
	case err != nil:
		return err
	}
	logger.WithField("quiz_id", quiz.ID).Info("sample quiz seeded")
	return nil
}
