package domain

import "time"

// CompletedQuestionID is the pointer value stored once a user has answered the last question of a quiz.
const CompletedQuestionID = "00000000-0000-0000-0000-000000000000"

// Quiz is the live-session view of a quiz. Only Published may change while a session is running.
type Quiz struct {
	ID              string        `json:"quiz_id"`
	Title           string        `json:"title"`
	TotalDuration   time.Duration `json:"-"`
	FirstQuestionID string        `json:"first_question_id"`
	Published       bool          `json:"is_published"`
}

// Question is one link in a quiz's singly linked question chain.
type Question struct {
	ID             string `json:"question_id"`
	QuizID         string `json:"quiz_id"`
	CorrectAnswers string `json:"correct_answers"` // canonical, see app.CanonicalAnswers
	Points         int    `json:"points"`
	NextQuestionID string `json:"next_question_id"`
}

// IsLast reports whether answering q completes the quiz.
func (q Question) IsLast() bool {
	return q.NextQuestionID == "" || q.NextQuestionID == CompletedQuestionID
}

// UserProgress is the single source of truth for where a user is in a quiz.
type UserProgress struct {
	QuizID            string    `json:"quiz_id"`
	UserID            string    `json:"user_id"`
	DisplayName       string    `json:"display_name"`
	Score             int       `json:"score"`
	CurrentQuestionID string    `json:"current_question_id"`
	StartedAt         time.Time `json:"started_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Completed reports whether the user has answered every question.
func (p UserProgress) Completed() bool {
	return p.CurrentQuestionID == CompletedQuestionID
}

// AnswerLog is a write-once audit row for a single submission.
type AnswerLog struct {
	QuizID     string    `json:"quiz_id"`
	UserID     string    `json:"user_id"`
	QuestionID string    `json:"question_id"`
	Answers    string    `json:"answers"`
	AnsweredAt time.Time `json:"answered_at"`
}

// Identity is an authenticated live participant.
type Identity struct {
	UserID      string `json:"user_id"`
	SessionID   string `json:"session_id"`
	DisplayName string `json:"display_name"`
}

// AnswerSubmission models the scoring signal from clients.
type AnswerSubmission struct {
	QuizID     string
	QuestionID string
	Answers    string
	User       Identity
}

// LeaderboardEntry is a snapshot-friendly view of a participant.
type LeaderboardEntry struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Score       int       `json:"score"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// EntryFromProgress projects a progress row onto the leaderboard.
func EntryFromProgress(p UserProgress) LeaderboardEntry {
	return LeaderboardEntry{
		UserID:      p.UserID,
		DisplayName: p.DisplayName,
		Score:       p.Score,
		UpdatedAt:   p.UpdatedAt,
	}
}

// ScoreResult summarizes the outcome of a submission for a single user.
type ScoreResult struct {
	Progress             UserProgress `json:"progress"`
	QuestionID           string       `json:"question_id"`
	Correct              bool         `json:"correct"`
	Awarded              int          `json:"awarded"`
	CorrectAnswers       string       `json:"correct_answers"`
	LeaderboardAffecting bool         `json:"leaderboard_affecting"`
}
