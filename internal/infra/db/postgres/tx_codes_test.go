//go:build !integration

package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgconn"
)

func TestPgErrorCodes(t *testing.T) {
	dup := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})
	serial := &pgconn.PgError{Code: "40001"}

	if !isUniqueViolation(dup) || isUniqueViolation(serial) {
		t.Error("unique violation detection")
	}
	if !isSerializationFailure(serial) || isSerializationFailure(dup) {
		t.Error("serialization failure detection")
	}
	if isSerializationFailure(nil) || isUniqueViolation(errors.New("plain")) {
		t.Error("non-pg errors must not match")
	}
}
