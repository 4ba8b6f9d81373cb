package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"quiz-gateway/internal/app"
	"quiz-gateway/internal/auth"
	"quiz-gateway/internal/config"
	"quiz-gateway/internal/infra/kafka"
	"quiz-gateway/internal/infra/memory"
	redisinfra "quiz-gateway/internal/infra/redis"
	transport "quiz-gateway/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the gateway.
func NewStartCmd(configPath, port *string) *cobra.Command {
	var demoUsers []string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port, demoUsers)
		},
	}
	cmd.Flags().StringVar(port, "port", "", "port to listen on (overrides config)")
	cmd.Flags().StringSliceVar(&demoUsers, "demo-user", nil, "issue a token at startup for id:name (repeatable)")
	return cmd
}

func runServer(ctx context.Context, configPath, portFlag string, demoUsers []string) error {
	cfg, logger, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	if err := bootstrapSchema(ctx, cfg, logger); err != nil {
		return err
	}
	store, err := openRowStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	if cfg.RowStore.Driver == config.DriverMemory {
		quiz, questions := sampleQuiz()
		if err := app.SeedQuiz(ctx, store, quiz, questions); err != nil {
			return err
		}
		logger.WithField("quiz_id", quiz.ID).Info("memory row store seeded with sample quiz")
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	boardTTL := config.TTLDuration(cfg.Redis.LeaderboardTTL, 30*time.Second)
	origin := instanceID()

	var (
		catalog app.Catalog = app.NewRowCatalog(store)
		board   app.LeaderboardCache
		kv      app.KVStore
		fanout  transport.Fanout
	)
	if cfg.Redis.Addr != "" {
		client := newRedisClient(cfg)
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		redisFanout := redisinfra.NewFanout(client, cfg.Redis.Channel, origin, logger)
		defer redisFanout.Close()

		catalog = redisinfra.NewCatalogCache(client, catalog, quizTTL)
		board = redisinfra.NewLeaderboardCache(client, boardTTL)
		kv = redisinfra.NewKVStore(client)
		fanout = redisFanout
	} else {
		logger.Warn("REDIS_ADDR not set: sessions and room broadcasts stay inside this process")
		catalog = memory.NewCatalogCache(catalog, quizTTL)
		board = memory.NewLeaderboardCache(boardTTL)
		kv = memory.NewKVStore()
		fanout = memory.NewFanout()
	}

	var sink app.ExportSink
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaSink := kafka.NewSink(kafkaOptions(cfg), logger)
		defer kafkaSink.Close()
		sink = kafkaSink
	} else {
		logger.Info("KAFKA_BROKERS not set: progress exports are kept in memory only")
		sink = memory.NewRecordingSink(1000)
	}

	engine := app.NewScoreEngine(store, catalog, board, sink, logger, app.Options{
		LeaderboardSize: cfg.Gateway.LeaderboardSize,
	})
	defer engine.Wait()

	sessionTTL := config.TTLDuration(cfg.Auth.SessionTTL, 24*time.Hour)
	if err := issueDemoTokens(ctx, auth.NewIssuer(cfg.Auth.JWTSecret, kv, sessionTTL), demoUsers, logger); err != nil {
		return err
	}

	gateway := transport.NewGateway(engine, auth.NewValidator(cfg.Auth.JWTSecret, kv), fanout, logger, transport.Options{
		EventTimeout: config.TTLDuration(cfg.Gateway.EventTimeout, 5*time.Second),
		PingInterval: config.TTLDuration(cfg.Gateway.PingInterval, 30*time.Second),
		PongWait:     config.TTLDuration(cfg.Gateway.PongWait, 60*time.Second),
	})
	if err := gateway.Start(ctx); err != nil {
		return fmt.Errorf("fanout subscribe: %w", err)
	}
	allow, err := transport.ParseAllowList(cfg.Gateway.NotificationAllowedIPs)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           transport.NewRouter(gateway, allow),
		ReadHeaderTimeout: 15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{
			"port":     finalPort,
			"instance": origin,
			"rowstore": cfg.RowStore.Driver,
		}).Info("starting quiz gateway")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down gateway...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.TTLDuration(cfg.Server.ShutdownTimeout, 10*time.Second))
	defer cancel()
	err = server.Shutdown(shutdownCtx)
	gateway.Shutdown()
	return err
}

func issueDemoTokens(ctx context.Context, issuer *auth.Issuer, users []string, logger logrus.FieldLogger) error {
	for _, raw := range users {
		id, name, _ := strings.Cut(raw, ":")
		if name == "" {
			name = id
		}
		token, sessionID, err := issuer.Issue(ctx, id, name)
		if err != nil {
			return fmt.Errorf("demo user %s: %w", id, err)
		}
		logger.WithFields(logrus.Fields{"user_id": id, "session_id": sessionID}).Infof("demo token: %s", token)
	}
	return nil
}

func instanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return uuid.NewString()
	}
	return host + "-" + uuid.NewString()[:8]
}
