package scylla

import (
	"errors"
	"strings"
	"testing"

	"quiz-gateway/internal/rowstore"
)

func TestLightweightTransactions(t *testing.T) {
	stmt, args, err := insertStatement("user_progress", rowstore.Row{"quiz_id": "quiz-1", "user_id": "u1"}, true)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if stmt != `INSERT INTO "user_progress" ("quiz_id", "user_id") VALUES (?, ?) IF NOT EXISTS` || len(args) != 2 {
		t.Fatalf("unexpected insert %q %v", stmt, args)
	}

	stmt, args, err = updateStatement("user_progress",
		rowstore.Row{"score": 5},
		rowstore.Conditions{"quiz_id": "quiz-1", "user_id": "u1"},
		rowstore.Conditions{"score": 0, "current_question_id": "q1"},
	)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	want := `UPDATE "user_progress" SET "score" = ? WHERE "quiz_id" = ? AND "user_id" = ? IF "current_question_id" = ? AND "score" = ?`
	if stmt != want {
		t.Fatalf("unexpected statement:\n%s\nwant\n%s", stmt, want)
	}
	if len(args) != 5 || args[0] != 5 || args[3] != "q1" || args[4] != 0 {
		t.Fatalf("unexpected args %v", args)
	}
}

func TestPlainStatements(t *testing.T) {
	stmt, _, err := insertStatement("quizzes", rowstore.Row{"quiz_id": "quiz-1"}, false)
	if err != nil || strings.Contains(stmt, "IF NOT EXISTS") {
		t.Fatalf("plain insert must be an upsert, got %q (%v)", stmt, err)
	}
	if _, _, err := deleteStatement("quizzes", rowstore.Conditions{}); !errors.Is(err, rowstore.ErrNoConditions) {
		t.Fatalf("expected unbounded delete to be refused, got %v", err)
	}
	if _, _, err := selectStatement("quizzes", []string{"Title"}, nil); !errors.Is(err, rowstore.ErrInvalidIdentifier) {
		t.Fatalf("expected invalid identifier, got %v", err)
	}
}

func TestKeyspaceStatement(t *testing.T) {
	stmt, err := keyspaceStatement(Options{Keyspace: "quiz"})
	if err != nil {
		t.Fatalf("keyspace: %v", err)
	}
	if !strings.Contains(stmt, "'SimpleStrategy'") || !strings.Contains(stmt, "'replication_factor': 1") {
		t.Fatalf("unexpected defaults in %q", stmt)
	}
	if _, err := keyspaceStatement(Options{Keyspace: "quiz; DROP"}); !errors.Is(err, rowstore.ErrInvalidIdentifier) {
		t.Fatalf("expected keyspace to be validated, got %v", err)
	}
	if _, err := keyspaceStatement(Options{Keyspace: "quiz", ReplicationClass: "Bogus"}); err == nil {
		t.Fatalf("expected unknown replication class to be refused")
	}
}
