package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestIsUniqueViolation(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		constraint string
		want       bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "pgx unique", err: fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "entitlements_subject_id_key"}), want: true},
		{name: "pgx unique constraint match", err: &pgconn.PgError{Code: "23505", ConstraintName: "entitlements_subject_id_key"}, constraint: "entitlements_subject_id_key", want: true},
		{name: "pgx unique other constraint", err: &pgconn.PgError{Code: "23505", ConstraintName: "other_key"}, constraint: "entitlements_subject_id_key", want: false},
		{name: "pgx not null", err: &pgconn.PgError{Code: "23502"}, want: false},
		{name: "pq unique", err: &pq.Error{Code: "23505", Constraint: "entitlements_subject_id_key"}, want: true},
		{name: "sqlite unique", err: errors.New("UNIQUE constraint failed: entitlements.subject_id"), want: true},
		{name: "sqlite unique with column", err: errors.New("UNIQUE constraint failed: entitlements.subject_id"), constraint: "entitlements.subject_id", want: true},
		{name: "plain error", err: errors.New("connection refused"), want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsUniqueViolation(tc.err, tc.constraint); got != tc.want {
				t.Fatalf("IsUniqueViolation() = %v, want %v", got, tc.want)
			}
		})
	}
}
