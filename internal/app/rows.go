package app

import (
	"context"
	"fmt"
	"time"

	"quiz-gateway/internal/domain"
	"quiz-gateway/internal/rowstore"
)

var (
	quizColumns     = []string{"quiz_id", "title", "total_time_seconds", "first_question_id", "is_published"}
	questionColumns = []string{"quiz_id", "question_id", "correct_answers", "points", "next_question_id"}
	progressColumns = []string{"quiz_id", "user_id", "display_name", "score", "current_question_id", "started_at", "updated_at"}
)

// QuizRow encodes a quiz for the quizzes table.
func QuizRow(q domain.Quiz) rowstore.Row {
	return rowstore.Row{
		"quiz_id":            q.ID,
		"title":              q.Title,
		"total_time_seconds": int(q.TotalDuration / time.Second),
		"first_question_id":  q.FirstQuestionID,
		"is_published":       q.Published,
	}
}

// QuestionRow encodes a question for the questions table. The correct answers are stored canonicalized.
func QuestionRow(q domain.Question) rowstore.Row {
	next := q.NextQuestionID
	if next == "" {
		next = domain.CompletedQuestionID
	}
	return rowstore.Row{
		"quiz_id":          q.QuizID,
		"question_id":      q.ID,
		"correct_answers":  CanonicalAnswers(q.CorrectAnswers),
		"points":           q.Points,
		"next_question_id": next,
	}
}

// ProgressRow encodes a user progress row.
func ProgressRow(p domain.UserProgress) rowstore.Row {
	return rowstore.Row{
		"quiz_id":             p.QuizID,
		"user_id":             p.UserID,
		"display_name":        p.DisplayName,
		"score":               p.Score,
		"current_question_id": p.CurrentQuestionID,
		"started_at":          p.StartedAt,
		"updated_at":          p.UpdatedAt,
	}
}

// AnswerRow encodes an append-only answer log row.
func AnswerRow(a domain.AnswerLog) rowstore.Row {
	return rowstore.Row{
		"quiz_id":     a.QuizID,
		"user_id":     a.UserID,
		"question_id": a.QuestionID,
		"answers":     a.Answers,
		"answered_at": a.AnsweredAt,
	}
}

func quizFromRow(row rowstore.Row) domain.Quiz {
	return domain.Quiz{
		ID:              rowstore.String(row, "quiz_id"),
		Title:           rowstore.String(row, "title"),
		TotalDuration:   time.Duration(rowstore.Int(row, "total_time_seconds")) * time.Second,
		FirstQuestionID: rowstore.String(row, "first_question_id"),
		Published:       rowstore.Bool(row, "is_published"),
	}
}

func questionFromRow(row rowstore.Row) domain.Question {
	return domain.Question{
		ID:             rowstore.String(row, "question_id"),
		QuizID:         rowstore.String(row, "quiz_id"),
		CorrectAnswers: rowstore.String(row, "correct_answers"),
		Points:         rowstore.Int(row, "points"),
		NextQuestionID: rowstore.String(row, "next_question_id"),
	}
}

func progressFromRow(row rowstore.Row) domain.UserProgress {
	return domain.UserProgress{
		QuizID:            rowstore.String(row, "quiz_id"),
		UserID:            rowstore.String(row, "user_id"),
		DisplayName:       rowstore.String(row, "display_name"),
		Score:             rowstore.Int(row, "score"),
		CurrentQuestionID: rowstore.String(row, "current_question_id"),
		StartedAt:         rowstore.Time(row, "started_at"),
		UpdatedAt:         rowstore.Time(row, "updated_at"),
	}
}

// RowCatalog reads quiz content straight from the row store.
type RowCatalog struct {
	store rowstore.Store
}

func NewRowCatalog(store rowstore.Store) *RowCatalog {
	return &RowCatalog{store: store}
}

func (c *RowCatalog) Quiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	rows, err := c.store.Select(ctx, domain.TableQuizzes, quizColumns, rowstore.Conditions{"quiz_id": quizID})
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}
	if len(rows) == 0 {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return quizFromRow(rows[0]), nil
}

func (c *RowCatalog) Question(ctx context.Context, quizID, questionID string) (domain.Question, error) {
	rows, err := c.store.Select(ctx, domain.TableQuestions, questionColumns, rowstore.Conditions{
		"quiz_id":     quizID,
		"question_id": questionID,
	})
	if err != nil {
		return domain.Question{}, fmt.Errorf("load question: %w", err)
	}
	if len(rows) == 0 {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	return questionFromRow(rows[0]), nil
}

// SeedQuiz writes a quiz and its questions. Used by the seed command and tests.
func SeedQuiz(ctx context.Context, store rowstore.Store, quiz domain.Quiz, questions []domain.Question) error {
	if err := store.Insert(ctx, domain.TableQuizzes, QuizRow(quiz)); err != nil {
		return fmt.Errorf("seed quiz %s: %w", quiz.ID, err)
	}
	for _, q := range questions {
		if err := store.Insert(ctx, domain.TableQuestions, QuestionRow(q)); err != nil {
			return fmt.Errorf("seed question %s: %w", q.ID, err)
		}
	}
	return nil
}

func loadProgress(ctx context.Context, store rowstore.Store, quizID, userID string) (domain.UserProgress, bool, error) {
	rows, err := store.Select(ctx, domain.TableUserProgress, progressColumns, rowstore.Conditions{
		"quiz_id": quizID,
		"user_id": userID,
	})
	if err != nil {
		return domain.UserProgress{}, false, fmt.Errorf("load progress: %w", err)
	}
	if len(rows) == 0 {
		return domain.UserProgress{}, false, nil
	}
	return progressFromRow(rows[0]), true, nil
}

func listProgress(ctx context.Context, store rowstore.Store, quizID string) ([]domain.UserProgress, error) {
	rows, err := store.Select(ctx, domain.TableUserProgress, progressColumns, rowstore.Conditions{"quiz_id": quizID})
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	out := make([]domain.UserProgress, 0, len(rows))
	for _, row := range rows {
		out = append(out, progressFromRow(row))
	}
	return out, nil
}
