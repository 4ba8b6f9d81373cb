package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"quiz-gateway/internal/app"
	"quiz-gateway/internal/domain"
	"quiz-gateway/internal/infra/memory"
	"quiz-gateway/internal/rowstore"
)

var (
	alice = domain.Identity{UserID: "u1", SessionID: "s1", DisplayName: "Alice"}
	bob   = domain.Identity{UserID: "u2", SessionID: "s2", DisplayName: "Bob"}
	carol = domain.Identity{UserID: "u3", SessionID: "s3", DisplayName: "Carol"}
)

func TestCorrectAnswerScoresAndAffectsLeaderboard(t *testing.T) {
	ctx := context.Background()
	store := newSeededStore(t)
	sink := memory.NewRecordingSink(0)
	engine := newTestEngine(store, nil, sink, newTestClock(), app.Options{})

	startQuiz(t, engine, alice)

	res, err := engine.Submit(ctx, submission(alice, "q1", "a"))
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if !res.Correct || res.Awarded != 5 || res.Progress.Score != 5 {
		t.Fatalf("expected 5 points, got %+v", res)
	}
	if res.Progress.CurrentQuestionID != "q2" {
		t.Fatalf("expected pointer to advance to q2, got %s", res.Progress.CurrentQuestionID)
	}
	if !res.LeaderboardAffecting {
		t.Fatalf("expected leaderboard-affecting result")
	}

	engine.Wait()

	records := sink.Records()
	if len(records) != 1 || records[0].Key != "u1" {
		t.Fatalf("expected one export keyed by user id, got %+v", records)
	}
	var exported app.ExportRecord
	if err := json.Unmarshal(records[0].Value, &exported); err != nil {
		t.Fatalf("decode export: %v", err)
	}
	if exported.Event != "progress_updated" || exported.Score != 5 || exported.QuestionID != "q1" {
		t.Fatalf("unexpected export record %+v", exported)
	}

	logs, err := store.Select(ctx, domain.TableUserAnswers, nil, rowstore.Conditions{"quiz_id": "quiz-1", "user_id": "u1"})
	if err != nil {
		t.Fatalf("select answer log: %v", err)
	}
	if len(logs) != 1 || rowstore.String(logs[0], "answers") != "a" {
		t.Fatalf("expected one answer log row, got %+v", logs)
	}
}

func TestResubmissionIsRejected(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(newSeededStore(t), nil, nil, newTestClock(), app.Options{})
	startQuiz(t, engine, alice)

	if _, err := engine.Submit(ctx, submission(alice, "q1", "a")); err != nil {
		t.Fatalf("first submit failed: %v", err)
	}
	_, err := engine.Submit(ctx, submission(alice, "q1", "a"))
	if !errors.Is(err, domain.ErrInvalidSubmission) {
		t.Fatalf("expected invalid submission, got %v", err)
	}

	progress, err := engine.Standing(ctx, alice, "quiz-1")
	if err != nil {
		t.Fatalf("standing failed: %v", err)
	}
	if progress.Score != 5 {
		t.Fatalf("expected score to stay at 5, got %d", progress.Score)
	}
}

func TestMultiSelectIgnoresOrderAndCompletesQuiz(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(newSeededStore(t), nil, nil, newTestClock(), app.Options{})
	startQuiz(t, engine, alice)

	if _, err := engine.Submit(ctx, submission(alice, "q1", "a")); err != nil {
		t.Fatalf("submit q1 failed: %v", err)
	}
	res, err := engine.Submit(ctx, submission(alice, "q2", " c, b ,b"))
	if err != nil {
		t.Fatalf("submit q2 failed: %v", err)
	}
	if !res.Correct || res.Progress.Score != 8 {
		t.Fatalf("expected 8 points after multi-select, got %+v", res)
	}
	if !res.Progress.Completed() {
		t.Fatalf("expected quiz to be completed, pointer %s", res.Progress.CurrentQuestionID)
	}

	_, err = engine.Submit(ctx, submission(alice, "q2", "b,c"))
	if !errors.Is(err, domain.ErrInvalidSubmission) {
		t.Fatalf("expected completed quiz to reject answers, got %v", err)
	}
}

func TestWrongAnswerAdvancesWithoutPoints(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(newSeededStore(t), nil, nil, newTestClock(), app.Options{})
	startQuiz(t, engine, alice)

	res, err := engine.Submit(ctx, submission(alice, "q1", "z"))
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if res.Correct || res.Awarded != 0 || res.Progress.Score != 0 {
		t.Fatalf("expected no points, got %+v", res)
	}
	if res.LeaderboardAffecting {
		t.Fatalf("zero-point answer must not affect the leaderboard")
	}
	if res.Progress.CurrentQuestionID != "q2" {
		t.Fatalf("expected pointer to advance, got %s", res.Progress.CurrentQuestionID)
	}
}

func TestSubmitWithoutProgressIsIncomplete(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(newSeededStore(t), nil, nil, newTestClock(), app.Options{})

	_, err := engine.Submit(ctx, submission(alice, "q1", "a"))
	if !errors.Is(err, domain.ErrIncompleteQuizState) {
		t.Fatalf("expected incomplete quiz state, got %v", err)
	}

	startQuiz(t, engine, alice)
	_, err = engine.Submit(ctx, submission(alice, "nope", "a"))
	if !errors.Is(err, domain.ErrIncompleteQuizState) {
		t.Fatalf("expected incomplete state for unknown question, got %v", err)
	}
}

func TestSubmitRejectsMissingFields(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(newSeededStore(t), nil, nil, newTestClock(), app.Options{})

	cases := []domain.AnswerSubmission{
		{QuizID: "quiz-1", QuestionID: "q1", Answers: "a"},
		{QuestionID: "q1", Answers: "a", User: alice},
		{QuizID: "quiz-1", Answers: "a", User: alice},
		{QuizID: "quiz-1", QuestionID: "q1", Answers: " , ", User: alice},
	}
	for i, sub := range cases {
		if _, err := engine.Submit(ctx, sub); !errors.Is(err, domain.ErrInvalidSubmission) {
			t.Fatalf("case %d: expected invalid submission, got %v", i, err)
		}
	}
}

func TestSubmitAfterTimeLimit(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	engine := newTestEngine(newSeededStore(t), nil, nil, clock, app.Options{})
	startQuiz(t, engine, alice)

	clock.Advance(11 * time.Minute)
	_, err := engine.Submit(ctx, submission(alice, "q1", "a"))
	if !errors.Is(err, domain.ErrInvalidSubmission) {
		t.Fatalf("expected time-up rejection, got %v", err)
	}
}

func TestStartQuiz(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(newSeededStore(t), nil, nil, newTestClock(), app.Options{})

	if _, err := engine.StartQuiz(ctx, alice, "missing"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected quiz not found, got %v", err)
	}
	if _, err := engine.StartQuiz(ctx, alice, "draft"); !errors.Is(err, domain.ErrQuizNotPublished) {
		t.Fatalf("expected unpublished quiz rejection, got %v", err)
	}

	first := startQuiz(t, engine, alice)
	if first.CurrentQuestionID != "q1" || first.Score != 0 || first.DisplayName != "Alice" {
		t.Fatalf("unexpected fresh progress %+v", first)
	}
	if _, err := engine.Submit(ctx, submission(alice, "q1", "a")); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	again := startQuiz(t, engine, alice)
	if again.Score != 5 || again.CurrentQuestionID != "q2" {
		t.Fatalf("rejoining must keep progress, got %+v", again)
	}
}

func TestConcurrentSubmissionsAwardOnce(t *testing.T) {
	ctx := context.Background()
	store := newSeededStore(t)
	clock := newTestClock()
	// two gateway instances over one row store
	engines := []*app.ScoreEngine{
		newTestEngine(store, nil, nil, clock, app.Options{}),
		newTestEngine(store, nil, nil, clock, app.Options{}),
	}
	startQuiz(t, engines[0], alice)

	const workers = 40
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		failures []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(engine *app.ScoreEngine) {
			defer wg.Done()
			_, err := engine.Submit(ctx, submission(alice, "q1", "a"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case !errors.Is(err, domain.ErrInvalidSubmission):
				failures = append(failures, err)
			}
		}(engines[i%len(engines)])
	}
	wg.Wait()

	if len(failures) > 0 {
		t.Fatalf("unexpected errors: %v", failures)
	}
	if accepted != 1 {
		t.Fatalf("expected exactly one accepted submission, got %d", accepted)
	}
	progress, err := engines[1].Standing(ctx, alice, "quiz-1")
	if err != nil {
		t.Fatalf("standing failed: %v", err)
	}
	if progress.Score != 5 {
		t.Fatalf("expected score 5 after concurrent submissions, got %d", progress.Score)
	}
}

func TestInterleavedWriteIsDetected(t *testing.T) {
	ctx := context.Background()
	store := newSeededStore(t)
	clock := newTestClock()
	other := newTestEngine(store, nil, nil, clock, app.Options{})

	// The other instance answers q1 between this instance's read and its conditional write.
	hooked := &hookStore{Store: store}
	hooked.beforeCAS = func() {
		if _, err := other.Submit(ctx, submission(alice, "q1", "a")); err != nil {
			t.Errorf("interleaved submit failed: %v", err)
		}
	}
	engine := newTestEngine(hooked, nil, nil, clock, app.Options{})
	startQuiz(t, engine, alice)

	_, err := engine.Submit(ctx, submission(alice, "q1", "a"))
	if !errors.Is(err, domain.ErrInvalidSubmission) {
		t.Fatalf("expected the losing write to be rejected, got %v", err)
	}
	progress, err := other.Standing(ctx, alice, "quiz-1")
	if err != nil {
		t.Fatalf("standing failed: %v", err)
	}
	if progress.Score != 5 || progress.CurrentQuestionID != "q2" {
		t.Fatalf("expected a single award, got %+v", progress)
	}
}

func TestNextQuestionWaitsForPreviousSubmission(t *testing.T) {
	ctx := context.Background()
	store := newSeededStore(t)
	hooked := &hookStore{Store: store}
	engine := newTestEngine(hooked, nil, nil, newTestClock(), app.Options{})
	startQuiz(t, engine, alice)

	// q2 arrives while q1 is still inside its conditional write.
	var (
		second    domain.ScoreResult
		secondErr error
		done      = make(chan struct{})
	)
	hooked.beforeCAS = func() {
		go func() {
			defer close(done)
			second, secondErr = engine.Submit(ctx, submission(alice, "q2", "b,c"))
		}()
		time.Sleep(20 * time.Millisecond)
	}

	first, err := engine.Submit(ctx, submission(alice, "q1", "a"))
	if err != nil {
		t.Fatalf("q1 submit failed: %v", err)
	}
	<-done
	if secondErr != nil {
		t.Fatalf("q2 submit failed: %v", secondErr)
	}
	if first.Progress.Score != 5 || second.Progress.Score != 8 || !second.Progress.Completed() {
		t.Fatalf("unexpected results q1=%+v q2=%+v", first.Progress, second.Progress)
	}
}

func TestNextQuestionOnOtherInstanceBeforeWriteLands(t *testing.T) {
	ctx := context.Background()
	store := newSeededStore(t)
	clock := newTestClock()
	other := newTestEngine(store, nil, nil, clock, app.Options{})

	// Instances do not share the per-user lock, so q2 read on the other instance still sees q1 as current.
	var lateErr error
	hooked := &hookStore{Store: store}
	hooked.beforeCAS = func() {
		_, lateErr = other.Submit(ctx, submission(alice, "q2", "b,c"))
	}
	engine := newTestEngine(hooked, nil, nil, clock, app.Options{})
	startQuiz(t, engine, alice)

	if _, err := engine.Submit(ctx, submission(alice, "q1", "a")); err != nil {
		t.Fatalf("q1 submit failed: %v", err)
	}
	if !errors.Is(lateErr, domain.ErrInvalidSubmission) {
		t.Fatalf("expected q2 to be rejected as not current, got %v", lateErr)
	}
	progress, err := other.Standing(ctx, alice, "quiz-1")
	if err != nil {
		t.Fatalf("standing failed: %v", err)
	}
	if progress.Score != 5 || progress.CurrentQuestionID != "q2" {
		t.Fatalf("expected q2 still open, got %+v", progress)
	}
}

func TestStoreFailureSurfacesAsWriteFailure(t *testing.T) {
	ctx := context.Background()
	hooked := &hookStore{Store: newSeededStore(t), casErr: errors.New("write timeout")}
	engine := newTestEngine(hooked, nil, nil, newTestClock(), app.Options{})
	startQuiz(t, engine, alice)

	_, err := engine.Submit(ctx, submission(alice, "q1", "a"))
	if !errors.Is(err, domain.ErrStoreWriteFailure) {
		t.Fatalf("expected store write failure, got %v", err)
	}
}

func TestRetriesExhausted(t *testing.T) {
	ctx := context.Background()
	hooked := &hookStore{Store: newSeededStore(t), casRefuse: true}
	engine := newTestEngine(hooked, nil, nil, newTestClock(), app.Options{MaxWriteAttempts: 2})
	startQuiz(t, engine, alice)

	_, err := engine.Submit(ctx, submission(alice, "q1", "a"))
	if !errors.Is(err, domain.ErrStoreWriteFailure) {
		t.Fatalf("expected store write failure, got %v", err)
	}
	if hooked.casCalls != 2 {
		t.Fatalf("expected 2 write attempts, got %d", hooked.casCalls)
	}
}

func TestLeaderboardAffectingOnlyInsideTopN(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(newSeededStore(t), nil, nil, newTestClock(), app.Options{LeaderboardSize: 2})

	for _, u := range []domain.Identity{alice, bob, carol} {
		startQuiz(t, engine, u)
	}
	for _, u := range []domain.Identity{alice, bob} {
		res, err := engine.Submit(ctx, submission(u, "q1", "a"))
		if err != nil {
			t.Fatalf("submit for %s failed: %v", u.UserID, err)
		}
		if !res.LeaderboardAffecting {
			t.Fatalf("expected %s to enter the top 2", u.UserID)
		}
	}

	// Carol ties on score but reached it last, so she ranks third.
	res, err := engine.Submit(ctx, submission(carol, "q1", "a"))
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if res.LeaderboardAffecting {
		t.Fatalf("third place must not affect a top-2 leaderboard")
	}

	res, err = engine.Submit(ctx, submission(carol, "q2", "b,c"))
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if !res.LeaderboardAffecting {
		t.Fatalf("expected carol to take the lead")
	}

	top, err := engine.Leaderboard(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("leaderboard failed: %v", err)
	}
	if len(top) != 2 || top[0].UserID != "u3" || top[1].UserID != "u1" {
		t.Fatalf("unexpected leaderboard %+v", top)
	}
}

func TestLeaderboardUsesCacheUntilInvalidated(t *testing.T) {
	ctx := context.Background()
	cache := memory.NewLeaderboardCache(time.Minute)
	engine := newTestEngine(newSeededStore(t), cache, nil, newTestClock(), app.Options{})
	startQuiz(t, engine, alice)

	if _, err := engine.Leaderboard(ctx, "quiz-1"); err != nil {
		t.Fatalf("leaderboard failed: %v", err)
	}
	engine.Wait()
	if _, ok, _ := cache.Get(ctx, "quiz-1"); !ok {
		t.Fatalf("expected leaderboard snapshot to be cached")
	}

	if _, err := engine.Submit(ctx, submission(alice, "q1", "a")); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	engine.Wait()
	if _, ok, _ := cache.Get(ctx, "quiz-1"); ok {
		t.Fatalf("expected scoring change to invalidate the cached snapshot")
	}

	top, err := engine.Leaderboard(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("leaderboard failed: %v", err)
	}
	if len(top) != 1 || top[0].Score != 5 {
		t.Fatalf("expected fresh standings, got %+v", top)
	}
}

func TestLeaderboardRefreshRacingInvalidationIsDiscarded(t *testing.T) {
	ctx := context.Background()
	cache := &gatedCache{LeaderboardCache: memory.NewLeaderboardCache(time.Minute), gate: make(chan struct{})}
	engine := newTestEngine(newSeededStore(t), cache, nil, newTestClock(), app.Options{})
	startQuiz(t, engine, alice)

	// the refresh scheduled here holds a score-0 snapshot until the gate opens
	if _, err := engine.Leaderboard(ctx, "quiz-1"); err != nil {
		t.Fatalf("leaderboard failed: %v", err)
	}
	res, err := engine.Submit(ctx, submission(alice, "q1", "a"))
	if err != nil || !res.LeaderboardAffecting {
		t.Fatalf("expected affecting submit, got %+v %v", res, err)
	}
	cache.waitInvalidated(t)
	close(cache.gate)
	engine.Wait()

	top, err := engine.Leaderboard(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("leaderboard failed: %v", err)
	}
	if len(top) != 1 || top[0].Score != 5 {
		t.Fatalf("stale snapshot served after invalidation: %+v", top)
	}
}

// gatedCache holds every Set until gate is closed and records invalidations.
type gatedCache struct {
	*memory.LeaderboardCache
	gate chan struct{}

	mu          sync.Mutex
	invalidated int
}

func (c *gatedCache) Set(ctx context.Context, quizID string, generation int64, entries []domain.LeaderboardEntry) error {
	<-c.gate
	return c.LeaderboardCache.Set(ctx, quizID, generation, entries)
}

func (c *gatedCache) Invalidate(ctx context.Context, quizID string) error {
	err := c.LeaderboardCache.Invalidate(ctx, quizID)
	c.mu.Lock()
	c.invalidated++
	c.mu.Unlock()
	return err
}

func (c *gatedCache) waitInvalidated(t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		n := c.invalidated
		c.mu.Unlock()
		if n > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("invalidation never ran")
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 11, 22, 9, 0, 0, 0, time.UTC)}
}

// Now ticks one second per call so that every write gets a distinct timestamp.
func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// hookStore wraps a row store to inject behaviour around the conditional write.
type hookStore struct {
	rowstore.Store
	beforeCAS func()
	casErr    error
	casRefuse bool

	mu       sync.Mutex
	casCalls int
	hooked   bool
}

func (h *hookStore) CompareAndSwap(ctx context.Context, table string, set rowstore.Row, where, expect rowstore.Conditions) (bool, error) {
	h.mu.Lock()
	h.casCalls++
	runHook := h.beforeCAS != nil && !h.hooked
	h.hooked = true
	h.mu.Unlock()

	if runHook {
		h.beforeCAS()
	}
	if h.casErr != nil {
		return false, h.casErr
	}
	if h.casRefuse {
		return false, nil
	}
	return h.Store.CompareAndSwap(ctx, table, set, where, expect)
}

func newSeededStore(t *testing.T) *memory.RowStore {
	t.Helper()
	store := memory.NewRowStore(domain.TableKeys)
	ctx := context.Background()
	err := app.SeedQuiz(ctx, store, domain.Quiz{
		ID:              "quiz-1",
		Title:           "Capitals",
		TotalDuration:   10 * time.Minute,
		FirstQuestionID: "q1",
		Published:       true,
	}, []domain.Question{
		{ID: "q1", QuizID: "quiz-1", CorrectAnswers: "a", Points: 5, NextQuestionID: "q2"},
		{ID: "q2", QuizID: "quiz-1", CorrectAnswers: "c,b", Points: 3},
	})
	if err != nil {
		t.Fatalf("seed quiz: %v", err)
	}
	err = app.SeedQuiz(ctx, store, domain.Quiz{ID: "draft", Title: "Draft", FirstQuestionID: "d1"},
		[]domain.Question{{ID: "d1", QuizID: "draft", CorrectAnswers: "a", Points: 1}})
	if err != nil {
		t.Fatalf("seed draft: %v", err)
	}
	return store
}

func newTestEngine(store rowstore.Store, cache app.LeaderboardCache, sink app.ExportSink, clock *testClock, opts app.Options) *app.ScoreEngine {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	opts.Now = clock.Now
	return app.NewScoreEngine(store, nil, cache, sink, logger, opts)
}

func startQuiz(t *testing.T, engine *app.ScoreEngine, user domain.Identity) domain.UserProgress {
	t.Helper()
	progress, err := engine.StartQuiz(context.Background(), user, "quiz-1")
	if err != nil {
		t.Fatalf("start quiz for %s: %v", user.UserID, err)
	}
	return progress
}

func submission(user domain.Identity, questionID, answers string) domain.AnswerSubmission {
	return domain.AnswerSubmission{QuizID: "quiz-1", QuestionID: questionID, Answers: answers, User: user}
}
