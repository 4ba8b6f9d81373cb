package integration

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"quiz-gateway/internal/app"
	"quiz-gateway/internal/auth"
	"quiz-gateway/internal/domain"
	"quiz-gateway/internal/infra/memory"
	"quiz-gateway/internal/infra/postgres"
	"quiz-gateway/internal/infra/postgres/migrations"
	infraredis "quiz-gateway/internal/infra/redis"
)

func TestScoringEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	if _, err := migrations.Apply(ctx, pgURL); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// a second run must be a no-op
	group, err := migrations.Apply(ctx, pgURL)
	if err != nil || !group.IsZero() {
		t.Fatalf("expected no pending migrations, got %v %v", group, err)
	}

	store, err := postgres.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer store.Close()
	seedQuiz(t, ctx, store)

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	sessions := infraredis.NewKVStore(redisClient)
	issuer := auth.NewIssuer("secret", sessions, time.Hour)
	validator := auth.NewValidator("secret", sessions)

	token, _, err := issuer.Issue(ctx, "u1", "Alice")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	alice, err := validator.Validate(ctx, token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	bob := domain.Identity{UserID: "u2", SessionID: "s2", DisplayName: "Bob"}

	// two gateway instances share postgres and redis
	sink := memory.NewRecordingSink(0)
	newEngine := func() *app.ScoreEngine {
		catalog := infraredis.NewCatalogCache(redisClient, app.NewRowCatalog(store), 5*time.Minute)
		board := infraredis.NewLeaderboardCache(redisClient, 30*time.Second)
		return app.NewScoreEngine(store, catalog, board, sink, logger, app.Options{})
	}
	engineA, engineB := newEngine(), newEngine()
	defer engineA.Wait()
	defer engineB.Wait()

	for _, user := range []domain.Identity{alice, bob} {
		if _, err := engineA.StartQuiz(ctx, user, "quiz-1"); err != nil {
			t.Fatalf("start quiz for %s: %v", user.UserID, err)
		}
	}

	// the same answer raced through both instances is awarded once
	var wg sync.WaitGroup
	results := make([]error, 2)
	for i, engine := range []*app.ScoreEngine{engineA, engineB} {
		wg.Add(1)
		go func(i int, engine *app.ScoreEngine) {
			defer wg.Done()
			_, results[i] = engine.Submit(ctx, domain.AnswerSubmission{QuizID: "quiz-1", QuestionID: "q1", Answers: "a", User: alice})
		}(i, engine)
	}
	wg.Wait()
	if (results[0] == nil) == (results[1] == nil) {
		t.Fatalf("expected exactly one submission to win, got %v and %v", results[0], results[1])
	}

	res, err := engineB.Submit(ctx, domain.AnswerSubmission{QuizID: "quiz-1", QuestionID: "q2", Answers: "c,b", User: alice})
	if err != nil {
		t.Fatalf("second question: %v", err)
	}
	if res.Progress.Score != 8 || !res.Progress.Completed() {
		t.Fatalf("expected 8 points and a completed quiz, got %+v", res.Progress)
	}

	board, err := engineA.Leaderboard(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(board) != 2 || board[0].UserID != "u1" || board[0].Score != 8 || board[1].UserID != "u2" {
		t.Fatalf("unexpected leaderboard %+v", board)
	}

	// room broadcasts reach every instance
	fanoutA := infraredis.NewFanout(redisClient, "", "a", logger)
	fanoutB := infraredis.NewFanout(redisClient, "", "b", logger)
	defer fanoutA.Close()
	defer fanoutB.Close()
	got := make(chan domain.RoomEvent, 2)
	for _, f := range []*infraredis.Fanout{fanoutA, fanoutB} {
		if err := f.Subscribe(ctx, func(e domain.RoomEvent) { got <- e }); err != nil {
			t.Fatalf("subscribe: %v", err)
		}
	}
	if err := fanoutA.Publish(ctx, domain.RoomEvent{Room: "quiz-1", Type: domain.EventUpdateLeaderboard, Payload: []byte(`{}`)}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	for i := 0; i < 2; i++ {
		select {
		case e := <-got:
			if e.Room != "quiz-1" || e.Origin != "a" {
				t.Fatalf("unexpected event %+v", e)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("broadcast not delivered to every instance")
		}
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func seedQuiz(t *testing.T, ctx context.Context, store *postgres.RowStore) {
	t.Helper()
	err := app.SeedQuiz(ctx, store, domain.Quiz{
		ID:              "quiz-1",
		Title:           "Capitals",
		TotalDuration:   10 * time.Minute,
		FirstQuestionID: "q1",
		Published:       true,
	}, []domain.Question{
		{ID: "q1", QuizID: "quiz-1", CorrectAnswers: "a", Points: 5, NextQuestionID: "q2"},
		{ID: "q2", QuizID: "quiz-1", CorrectAnswers: "b,c", Points: 3},
	})
	if err != nil {
		t.Fatalf("seed quiz: %v", err)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
