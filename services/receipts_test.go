package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSQLDate(t *testing.T) {
	// The dedup predicate relies on an unknown date reaching Postgres as NULL,
	// not as a sentinel date that equality against NULL would never match.
	assert.Nil(t, sqlDate(time.Time{}))
	assert.Equal(t, "2026-07-15", sqlDate(date(2026, 7, 15)))
}
