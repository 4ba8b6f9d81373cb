package cli

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"quiz-gateway/internal/infra/kafka"
)

// NewMigrateCmd creates the row store schema and the export topic.
func NewMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create row store schema and export topic",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrations(cmd.Context(), *configPath)
		},
	}
}

func runMigrations(ctx context.Context, configPath string) error {
	cfg, logger, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := bootstrapSchema(ctx, cfg, logger); err != nil {
		return err
	}
	if len(cfg.Kafka.Brokers) == 0 {
		return nil
	}
	created, err := kafka.EnsureTopic(ctx, kafkaOptions(cfg), cfg.Kafka.Partitions, cfg.Kafka.ReplicationFactor)
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{"topic": cfg.Kafka.Topic, "created": created}).Info("export topic ready")
	return nil
}
