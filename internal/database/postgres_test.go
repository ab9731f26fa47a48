package database

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func Test_isUniqueViolation(t *testing.T) {
	tcases := []struct {
		name       string
		err        error
		constraint string
		expected   bool
	}{
		{
			name:       "matching constraint",
			err:        &pq.Error{Code: uniqueViolation, Constraint: openCodeConstraint},
			constraint: openCodeConstraint,
			expected:   true,
		},
		{
			name:       "wrapped error",
			err:        fmt.Errorf("insert: %w", &pq.Error{Code: uniqueViolation, Constraint: openCodeConstraint}),
			constraint: openCodeConstraint,
			expected:   true,
		},
		{
			name:       "any constraint",
			err:        &pq.Error{Code: uniqueViolation, Constraint: "accounts_email_key"},
			constraint: "",
			expected:   true,
		},
		{
			name:       "other constraint",
			err:        &pq.Error{Code: uniqueViolation, Constraint: "accounts_email_key"},
			constraint: openCodeConstraint,
			expected:   false,
		},
		{
			name:       "foreign key violation",
			err:        &pq.Error{Code: "23503"},
			constraint: "",
			expected:   false,
		},
		{
			name:       "not a postgres error",
			err:        errors.New("boom"),
			constraint: "",
			expected:   false,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, isUniqueViolation(tc.err, tc.constraint))
		})
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	assert.NoError(t, err, "expected migrations directory to be embedded")

	var up, down int
	for _, e := range entries {
		switch {
		case strings.HasSuffix(e.Name(), ".up.sql"):
			up++
		case strings.HasSuffix(e.Name(), ".down.sql"):
			down++
		}
	}

	assert.Equal(t, 4, up, "expected four up migrations")
	assert.Equal(t, up, down, "expected every up migration to have a down migration")

	schema, err := fs.ReadFile(migrationsFS, "migrations/000002_team_sessions.up.sql")
	assert.NoError(t, err)
	assert.Contains(t, string(schema), openCodeConstraint, "expected the open code index to match the constraint name used in queries")
}
