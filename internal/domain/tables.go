package domain

// Row-store tables and their primary key columns.
const (
	TableQuizzes      = "quizzes"
	TableQuestions    = "questions"
	TableUserProgress = "user_progress"
	TableUserAnswers  = "user_answers"
)

// TableKeys lists the primary key of every table, used by stores that enforce uniqueness themselves.
var TableKeys = map[string][]string{
	TableQuizzes:      {"quiz_id"},
	TableQuestions:    {"quiz_id", "question_id"},
	TableUserProgress: {"quiz_id", "user_id"},
	TableUserAnswers:  {"quiz_id", "user_id", "question_id", "answered_at"},
}

// SessionKey is the shared-store key holding a user's single live session id.
func SessionKey(userID string) string {
	return "user:" + userID
}
