package repo

import (
	"database/sql"
	"errors"
	"time"

	"fiscalops/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

// ErrNotFound is the domain sentinel; repo lookups wrap it in a
// domain.NotFoundError naming the entity.
var ErrNotFound = domain.ErrNotFound

// ErrVersionConflict means the row changed since it was read.
var ErrVersionConflict = errors.New("version conflict")

const tsLayout = time.RFC3339Nano

func formatTS(t time.Time) string { return t.UTC().Format(tsLayout) }

func parseTS(s string) (time.Time, error) { return time.Parse(tsLayout, s) }

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTS(*t)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
