package scylla

import (
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/sirupsen/logrus"
	"quiz-gateway/internal/rowstore"
)

// Options describes how to reach the cluster and how to create the keyspace when it is missing.
type Options struct {
	Hosts             []string
	Keyspace          string
	Username          string
	Password          string
	ReplicationClass  string
	ReplicationFactor int
	Timeout           time.Duration
}

func (o Options) cluster(keyspace string) *gocql.ClusterConfig {
	cluster := gocql.NewCluster(o.Hosts...)
	cluster.Keyspace = keyspace
	cluster.Consistency = gocql.Quorum
	cluster.SerialConsistency = gocql.LocalSerial
	if o.Timeout > 0 {
		cluster.Timeout = o.Timeout
	}
	if o.Username != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: o.Username,
			Password: o.Password,
		}
	}
	return cluster
}

// Connect opens a session bound to the configured keyspace.
func Connect(opts Options) (*gocql.Session, error) {
	if err := rowstore.CheckIdentifier(opts.Keyspace); err != nil {
		return nil, fmt.Errorf("scylla keyspace: %w", err)
	}
	session, err := opts.cluster(opts.Keyspace).CreateSession()
	if err != nil {
		return nil, fmt.Errorf("connect scylla keyspace %s: %w", opts.Keyspace, err)
	}
	return session, nil
}

// EnsureSchema creates the keyspace and every table if they do not exist yet.
func EnsureSchema(opts Options, logger logrus.FieldLogger) error {
	stmt, err := keyspaceStatement(opts)
	if err != nil {
		return err
	}
	system, err := opts.cluster("system").CreateSession()
	if err != nil {
		return fmt.Errorf("connect scylla: %w", err)
	}
	err = system.Query(stmt).Exec()
	system.Close()
	if err != nil {
		return fmt.Errorf("create keyspace %s: %w", opts.Keyspace, err)
	}
	logger.WithField("keyspace", opts.Keyspace).Info("keyspace ensured")

	session, err := Connect(opts)
	if err != nil {
		return err
	}
	defer session.Close()
	for _, q := range tableStatements {
		if err := session.Query(q.cql).Exec(); err != nil {
			return fmt.Errorf("create table %s: %w", q.table, err)
		}
		logger.WithField("table", q.table).Info("table ensured")
	}
	return nil
}

func keyspaceStatement(opts Options) (string, error) {
	if err := rowstore.CheckIdentifier(opts.Keyspace); err != nil {
		return "", fmt.Errorf("scylla keyspace: %w", err)
	}
	class := opts.ReplicationClass
	if class == "" {
		class = "SimpleStrategy"
	}
	if class != "SimpleStrategy" && class != "NetworkTopologyStrategy" {
		return "", fmt.Errorf("scylla: unsupported replication class %q", class)
	}
	factor := opts.ReplicationFactor
	if factor <= 0 {
		factor = 1
	}
	return fmt.Sprintf(`CREATE KEYSPACE IF NOT EXISTS %s WITH replication = {'class': '%s', 'replication_factor': %d}`,
		opts.Keyspace, class, factor), nil
}

var tableStatements = []struct {
	table string
	cql   string
}{
	{"quizzes", `CREATE TABLE IF NOT EXISTS quizzes (
		quiz_id text PRIMARY KEY,
		title text,
		total_time_seconds int,
		first_question_id text,
		is_published boolean
	)`},
	{"questions", `CREATE TABLE IF NOT EXISTS questions (
		quiz_id text,
		question_id text,
		correct_answers text,
		points int,
		next_question_id text,
		PRIMARY KEY (quiz_id, question_id)
	)`},
	{"user_progress", `CREATE TABLE IF NOT EXISTS user_progress (
		quiz_id text,
		user_id text,
		display_name text,
		score int,
		current_question_id text,
		started_at timestamp,
		updated_at timestamp,
		PRIMARY KEY (quiz_id, user_id)
	)`},
	{"user_answers", `CREATE TABLE IF NOT EXISTS user_answers (
		quiz_id text,
		user_id text,
		question_id text,
		answered_at timestamp,
		answers text,
		PRIMARY KEY ((quiz_id, user_id), question_id, answered_at)
	)`},
}
