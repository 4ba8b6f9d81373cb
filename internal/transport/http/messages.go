package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"quiz-gateway/internal/domain"
)

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type quizPayload struct {
	QuizID string `json:"quiz_id" validate:"required,max=128"`
}

type scorePayload struct {
	QuizID     string `json:"quiz_id" validate:"required,max=128"`
	QuestionID string `json:"question_id" validate:"required,max=128"`
	Answers    string `json:"answers" validate:"required,max=4096"`
}

type connectedPayload struct {
	ConnectionID string `json:"connection_id"`
	UserID       string `json:"user_id"`
	DisplayName  string `json:"display_name"`
}

type joinedPayload struct {
	QuizID      string                    `json:"quiz_id"`
	Progress    domain.UserProgress       `json:"progress"`
	Leaderboard []domain.LeaderboardEntry `json:"leaderboard"`
}

type updateResultPayload struct {
	Result         domain.ScoreResult `json:"result"`
	CorrectAnswers string             `json:"correct_answers"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type notificationPayload struct {
	Data json.RawMessage `json:"data"`
}

type notificationRequest struct {
	ConnectionID string          `json:"connection_id" validate:"required"`
	Data         json.RawMessage `json:"data" validate:"required"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	// report json names so error text matches what clients sent
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodePayload unmarshals raw into dst and runs struct validation, returning client-safe text on failure.
func decodePayload(v *validator.Validate, raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: malformed payload", domain.ErrInvalidSubmission)
	}
	if err := v.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			if fe.Tag() == "required" {
				return fmt.Errorf("%w: %s is required", domain.ErrInvalidSubmission, fe.Field())
			}
			return fmt.Errorf("%w: %s failed %s", domain.ErrInvalidSubmission, fe.Field(), fe.Tag())
		}
		return fmt.Errorf("%w: %v", domain.ErrInvalidSubmission, err)
	}
	return nil
}

// clientMessage maps an error to text that is safe and actionable for the client. Store and driver
// details never leave the gateway.
func clientMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidSubmission), errors.Is(err, domain.ErrIncompleteQuizState):
		return err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return "request timed out"
	}
	for _, sentinel := range publicErrors {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "internal error"
}

var publicErrors = []error{
	domain.ErrStoreWriteFailure,
	domain.ErrQuizNotFound,
	domain.ErrQuizNotPublished,
	domain.ErrMissingToken,
	domain.ErrInvalidToken,
	domain.ErrMalformedClaims,
	domain.ErrSessionStoreUnavailable,
	domain.ErrSessionNotFound,
	domain.ErrSessionMismatch,
}
