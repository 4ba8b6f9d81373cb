package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"quiz-gateway/internal/domain"
	"quiz-gateway/internal/rowstore"
)

// Options tunes the score engine. Zero values fall back to defaults.
type Options struct {
	LeaderboardSize  int
	MaxWriteAttempts int
	TaskTimeout      time.Duration
	Now              func() time.Time
}

// ScoreEngine contains the core scoring use cases.
type ScoreEngine struct {
	store    rowstore.Store
	catalog  Catalog
	cache    LeaderboardCache
	sink     ExportSink
	log      logrus.FieldLogger
	locks    *keyedMutex
	tasks    *bestEffort
	size     int
	attempts int
	now      func() time.Time
}

func NewScoreEngine(store rowstore.Store, catalog Catalog, cache LeaderboardCache, sink ExportSink, logger logrus.FieldLogger, opts Options) *ScoreEngine {
	if opts.LeaderboardSize <= 0 {
		opts.LeaderboardSize = 10
	}
	if opts.MaxWriteAttempts <= 0 {
		opts.MaxWriteAttempts = 3
	}
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = 5 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if catalog == nil {
		catalog = NewRowCatalog(store)
	}
	if cache == nil {
		cache = noopCache{}
	}
	if sink == nil {
		sink = discardSink{}
	}
	return &ScoreEngine{
		store:    store,
		catalog:  catalog,
		cache:    cache,
		sink:     sink,
		log:      logger,
		locks:    newKeyedMutex(),
		tasks:    &bestEffort{log: logger, timeout: opts.TaskTimeout},
		size:     opts.LeaderboardSize,
		attempts: opts.MaxWriteAttempts,
		now:      opts.Now,
	}
}

// StartQuiz creates the user's progress row for a published quiz, or returns the existing one.
func (e *ScoreEngine) StartQuiz(ctx context.Context, user domain.Identity, quizID string) (domain.UserProgress, error) {
	if user.UserID == "" || strings.TrimSpace(quizID) == "" {
		return domain.UserProgress{}, fmt.Errorf("%w: quiz_id is required", domain.ErrInvalidSubmission)
	}
	quiz, err := e.catalog.Quiz(ctx, quizID)
	if err != nil {
		return domain.UserProgress{}, err
	}
	if !quiz.Published {
		return domain.UserProgress{}, domain.ErrQuizNotPublished
	}
	if quiz.FirstQuestionID == "" {
		return domain.UserProgress{}, fmt.Errorf("%w: quiz %s has no questions", domain.ErrIncompleteQuizState, quizID)
	}

	now := e.now()
	fresh := domain.UserProgress{
		QuizID:            quizID,
		UserID:            user.UserID,
		DisplayName:       user.DisplayName,
		CurrentQuestionID: quiz.FirstQuestionID,
		StartedAt:         now,
		UpdatedAt:         now,
	}
	created, err := e.store.InsertIfAbsent(ctx, domain.TableUserProgress, ProgressRow(fresh))
	if err != nil {
		return domain.UserProgress{}, fmt.Errorf("%w: start quiz: %v", domain.ErrStoreWriteFailure, err)
	}
	if created {
		e.log.WithFields(logrus.Fields{"quiz_id": quizID, "user_id": user.UserID}).Info("quiz started")
		return fresh, nil
	}
	return e.Standing(ctx, user, quizID)
}

// Standing returns the caller's current progress row without mutating anything.
func (e *ScoreEngine) Standing(ctx context.Context, user domain.Identity, quizID string) (domain.UserProgress, error) {
	progress, ok, err := loadProgress(ctx, e.store, quizID, user.UserID)
	if err != nil {
		return domain.UserProgress{}, fmt.Errorf("%w: %v", domain.ErrStoreWriteFailure, err)
	}
	if !ok {
		return domain.UserProgress{}, fmt.Errorf("%w: user has not joined quiz %s", domain.ErrIncompleteQuizState, quizID)
	}
	return progress, nil
}

// Leaderboard returns the top standings, from the advisory cache when it has them.
func (e *ScoreEngine) Leaderboard(ctx context.Context, quizID string) ([]domain.LeaderboardEntry, error) {
	entries, ok, err := e.cache.Get(ctx, quizID)
	if err != nil {
		e.log.WithField("quiz_id", quizID).WithError(err).Warn("leaderboard cache read failed")
	} else if ok {
		return entries, nil
	}

	// read the generation before the rows so an invalidation in between discards the refresh
	generation, genErr := e.cache.Generation(ctx, quizID)
	if genErr != nil {
		e.log.WithField("quiz_id", quizID).WithError(genErr).Warn("leaderboard cache generation read failed")
	}

	rows, err := listProgress(ctx, e.store, quizID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreWriteFailure, err)
	}
	top := Top(Rank(rows), e.size)
	if genErr == nil {
		e.tasks.Go("refresh leaderboard cache", logrus.Fields{"quiz_id": quizID}, func(ctx context.Context) error {
			return e.cache.Set(ctx, quizID, generation, top)
		})
	}
	return top, nil
}

type quizState struct {
	quiz     domain.Quiz
	question domain.Question
	progress domain.UserProgress
}

// Submit scores one answer, persists the new progress with a conditional write and decides whether the
// room leaderboard must be refreshed.
func (e *ScoreEngine) Submit(ctx context.Context, sub domain.AnswerSubmission) (domain.ScoreResult, error) {
	answers, err := validateSubmission(sub)
	if err != nil {
		return domain.ScoreResult{}, err
	}

	unlock := e.locks.Lock(sub.QuizID + "\x00" + sub.User.UserID)
	defer unlock()

	fields := logrus.Fields{"quiz_id": sub.QuizID, "user_id": sub.User.UserID, "question_id": sub.QuestionID}

	var result domain.ScoreResult
	for attempt := 1; ; attempt++ {
		state, err := e.fetchState(ctx, sub)
		if err != nil {
			return domain.ScoreResult{}, err
		}
		result, err = e.score(state, sub, answers)
		if err != nil {
			return domain.ScoreResult{}, err
		}

		applied, err := e.store.CompareAndSwap(ctx, domain.TableUserProgress,
			rowstore.Row{
				"score":               result.Progress.Score,
				"current_question_id": result.Progress.CurrentQuestionID,
				"updated_at":          result.Progress.UpdatedAt,
			},
			rowstore.Conditions{"quiz_id": sub.QuizID, "user_id": sub.User.UserID},
			rowstore.Conditions{
				"score":               state.progress.Score,
				"current_question_id": state.progress.CurrentQuestionID,
			},
		)
		if err != nil {
			return domain.ScoreResult{}, fmt.Errorf("%w: %v", domain.ErrStoreWriteFailure, err)
		}
		if applied {
			break
		}
		if attempt >= e.attempts {
			return domain.ScoreResult{}, fmt.Errorf("%w: progress kept changing after %d attempts", domain.ErrStoreWriteFailure, attempt)
		}
		e.log.WithFields(fields).WithField("attempt", attempt).Debug("progress changed during submission, re-reading")
	}

	e.tasks.Go("append answer log", fields, func(ctx context.Context) error {
		return e.store.Insert(ctx, domain.TableUserAnswers, AnswerRow(domain.AnswerLog{
			QuizID:     sub.QuizID,
			UserID:     sub.User.UserID,
			QuestionID: sub.QuestionID,
			Answers:    sub.Answers,
			AnsweredAt: result.Progress.UpdatedAt,
		}))
	})

	affecting, err := e.affectsLeaderboard(ctx, result.Progress, result.Awarded)
	if err != nil {
		// Broadcasting is self-correcting, so an unknown standing is treated as a change.
		e.log.WithFields(fields).WithError(err).Warn("leaderboard recomputation failed")
		affecting = result.Awarded > 0
	}
	result.LeaderboardAffecting = affecting
	if affecting {
		e.tasks.Go("invalidate leaderboard cache", fields, func(ctx context.Context) error {
			return e.cache.Invalidate(ctx, sub.QuizID)
		})
	}

	e.export(result, fields)
	return result, nil
}

// Wait blocks until detached side tasks have finished; used on shutdown and in tests.
func (e *ScoreEngine) Wait() {
	e.tasks.Wait()
}

func validateSubmission(sub domain.AnswerSubmission) (string, error) {
	switch {
	case sub.User.UserID == "":
		return "", fmt.Errorf("%w: unauthenticated submission", domain.ErrInvalidSubmission)
	case strings.TrimSpace(sub.QuizID) == "":
		return "", fmt.Errorf("%w: quiz_id is required", domain.ErrInvalidSubmission)
	case strings.TrimSpace(sub.QuestionID) == "":
		return "", fmt.Errorf("%w: question_id is required", domain.ErrInvalidSubmission)
	}
	answers := CanonicalAnswers(sub.Answers)
	if answers == "" {
		return "", fmt.Errorf("%w: answers are required", domain.ErrInvalidSubmission)
	}
	return answers, nil
}

// fetchState loads quiz, question and progress concurrently and joins on all three.
func (e *ScoreEngine) fetchState(ctx context.Context, sub domain.AnswerSubmission) (quizState, error) {
	var st quizState
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		quiz, err := e.catalog.Quiz(gctx, sub.QuizID)
		if err != nil {
			return missing(err, "quiz")
		}
		st.quiz = quiz
		return nil
	})
	g.Go(func() error {
		question, err := e.catalog.Question(gctx, sub.QuizID, sub.QuestionID)
		if err != nil {
			return missing(err, "question")
		}
		st.question = question
		return nil
	})
	g.Go(func() error {
		progress, ok, err := loadProgress(gctx, e.store, sub.QuizID, sub.User.UserID)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrStoreWriteFailure, err)
		}
		if !ok {
			return fmt.Errorf("%w: no progress for user", domain.ErrIncompleteQuizState)
		}
		st.progress = progress
		return nil
	})
	if err := g.Wait(); err != nil {
		return quizState{}, err
	}
	return st, nil
}

func missing(err error, what string) error {
	if errors.Is(err, domain.ErrQuizNotFound) || errors.Is(err, domain.ErrQuestionNotFound) {
		return fmt.Errorf("%w: %s not found", domain.ErrIncompleteQuizState, what)
	}
	return fmt.Errorf("%w: %v", domain.ErrStoreWriteFailure, err)
}

// score computes the next progress row. It never touches the store.
func (e *ScoreEngine) score(st quizState, sub domain.AnswerSubmission, answers string) (domain.ScoreResult, error) {
	current := st.progress
	if current.Completed() {
		return domain.ScoreResult{}, fmt.Errorf("%w: quiz already completed", domain.ErrInvalidSubmission)
	}
	if current.CurrentQuestionID != sub.QuestionID {
		return domain.ScoreResult{}, fmt.Errorf("%w: question already answered or not current", domain.ErrInvalidSubmission)
	}
	now := e.now()
	if st.quiz.TotalDuration > 0 && now.After(current.StartedAt.Add(st.quiz.TotalDuration)) {
		return domain.ScoreResult{}, fmt.Errorf("%w: time is up", domain.ErrInvalidSubmission)
	}

	correctAnswers := CanonicalAnswers(st.question.CorrectAnswers)
	correct := correctAnswers != "" && answers == correctAnswers
	awarded := 0
	if correct && st.question.Points > 0 {
		awarded = st.question.Points
	}
	next := st.question.NextQuestionID
	if st.question.IsLast() {
		next = domain.CompletedQuestionID
	}

	updated := current
	updated.Score += awarded
	updated.CurrentQuestionID = next
	updated.UpdatedAt = now

	return domain.ScoreResult{
		Progress:       updated,
		QuestionID:     sub.QuestionID,
		Correct:        correct,
		Awarded:        awarded,
		CorrectAnswers: correctAnswers,
	}, nil
}

// affectsLeaderboard recomputes the full ranking from the row store; the cache is never trusted here.
// Only submissions that award points qualify, even on an empty board.
func (e *ScoreEngine) affectsLeaderboard(ctx context.Context, fresh domain.UserProgress, awarded int) (bool, error) {
	if awarded <= 0 {
		return false, nil
	}
	rows, err := listProgress(ctx, e.store, fresh.QuizID)
	if err != nil {
		return false, err
	}
	rank := rankOf(Rank(mergeFresh(rows, fresh)), fresh.UserID)
	return rank >= 0 && rank < e.size, nil
}

// ExportRecord is the analytics event emitted after every successful scoring call.
type ExportRecord struct {
	Event             string    `json:"event"`
	QuizID            string    `json:"quiz_id"`
	UserID            string    `json:"user_id"`
	DisplayName       string    `json:"display_name"`
	QuestionID        string    `json:"question_id"`
	Correct           bool      `json:"correct"`
	Awarded           int       `json:"awarded"`
	Score             int       `json:"score"`
	CurrentQuestionID string    `json:"current_question_id"`
	UpdatedAt         time.Time `json:"updated_at"`
	ExportedAt        time.Time `json:"exported_at"`
}

func (e *ScoreEngine) export(result domain.ScoreResult, fields logrus.Fields) {
	p := result.Progress
	record := ExportRecord{
		Event:             "progress_updated",
		QuizID:            p.QuizID,
		UserID:            p.UserID,
		DisplayName:       p.DisplayName,
		QuestionID:        result.QuestionID,
		Correct:           result.Correct,
		Awarded:           result.Awarded,
		Score:             p.Score,
		CurrentQuestionID: p.CurrentQuestionID,
		UpdatedAt:         p.UpdatedAt,
		ExportedAt:        e.now(),
	}
	e.tasks.Go("export progress", fields, func(ctx context.Context) error {
		value, err := json.Marshal(record)
		if err != nil {
			return err
		}
		return e.sink.Export(ctx, record.UserID, value)
	})
}

type noopCache struct{}

func (noopCache) Get(context.Context, string) ([]domain.LeaderboardEntry, bool, error) {
	return nil, false, nil
}
func (noopCache) Generation(context.Context, string) (int64, error)                    { return 0, nil }
func (noopCache) Set(context.Context, string, int64, []domain.LeaderboardEntry) error { return nil }
func (noopCache) Invalidate(context.Context, string) error                            { return nil }

type discardSink struct{}

func (discardSink) Export(context.Context, string, []byte) error { return nil }
