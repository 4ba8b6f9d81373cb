package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"quiz-gateway/internal/config"
	"quiz-gateway/internal/domain"
	"quiz-gateway/internal/infra/kafka"
	"quiz-gateway/internal/infra/memory"
	"quiz-gateway/internal/infra/postgres"
	"quiz-gateway/internal/infra/postgres/migrations"
	"quiz-gateway/internal/infra/scylla"
	"quiz-gateway/internal/logging"
	"quiz-gateway/internal/rowstore"
)

func loadConfig(path string) (config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, logging.New(cfg.Log.Level, cfg.Log.Format), nil
}

func openRowStore(ctx context.Context, cfg config.Config) (rowstore.Store, error) {
	switch cfg.RowStore.Driver {
	case config.DriverScylla:
		session, err := scylla.Connect(scyllaOptions(cfg))
		if err != nil {
			return nil, fmt.Errorf("scylla: %w", err)
		}
		return scylla.NewRowStore(session), nil
	case config.DriverPostgres:
		store, err := postgres.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		return store, nil
	default:
		return memory.NewRowStore(domain.TableKeys), nil
	}
}

// bootstrapSchema creates the keyspace and tables (scylla) or applies pending migrations (postgres).
func bootstrapSchema(ctx context.Context, cfg config.Config, logger logrus.FieldLogger) error {
	switch cfg.RowStore.Driver {
	case config.DriverScylla:
		return scylla.EnsureSchema(scyllaOptions(cfg), logger)
	case config.DriverPostgres:
		group, err := migrations.Apply(ctx, cfg.Postgres.URL)
		if err != nil {
			return fmt.Errorf("postgres migrations: %w", err)
		}
		if group == nil || group.IsZero() {
			logger.Info("postgres schema up to date")
			return nil
		}
		logger.WithField("group", group.String()).Info("postgres migrations applied")
		return nil
	default:
		logger.Debug("memory row store needs no schema")
		return nil
	}
}

func newRedisClient(cfg config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

func scyllaOptions(cfg config.Config) scylla.Options {
	return scylla.Options{
		Hosts:             cfg.Scylla.Hosts,
		Keyspace:          cfg.Scylla.Keyspace,
		Username:          cfg.Scylla.Username,
		Password:          cfg.Scylla.Password,
		ReplicationClass:  cfg.Scylla.ReplicationClass,
		ReplicationFactor: cfg.Scylla.ReplicationFactor,
		Timeout:           config.TTLDuration(cfg.Scylla.Timeout, 5*time.Second),
	}
}

func kafkaOptions(cfg config.Config) kafka.Options {
	return kafka.Options{
		Brokers:   cfg.Kafka.Brokers,
		Topic:     cfg.Kafka.Topic,
		Username:  cfg.Kafka.Username,
		Password:  cfg.Kafka.Password,
		Workers:   cfg.Kafka.Workers,
		QueueSize: cfg.Kafka.QueueSize,
	}
}

// sampleQuiz is the quiz the memory driver starts with and the seed command writes.
func sampleQuiz() (domain.Quiz, []domain.Question) {
	quiz := domain.Quiz{
		ID:              "quiz-1",
		Title:           "Warm-up",
		TotalDuration:   10 * time.Minute,
		FirstQuestionID: "q1",
		Published:       true,
	}
	questions := []domain.Question{
		{ID: "q1", QuizID: quiz.ID, CorrectAnswers: "b", Points: 5, NextQuestionID: "q2"},
		{ID: "q2", QuizID: quiz.ID, CorrectAnswers: "a,c", Points: 10, NextQuestionID: "q3"},
		{ID: "q3", QuizID: quiz.ID, CorrectAnswers: "d", Points: 5},
	}
	return quiz, questions
}
