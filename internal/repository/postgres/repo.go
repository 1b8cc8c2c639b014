// Package postgres implements the pipeline repositories against PostgreSQL
// via lib/pq. One Repo serves both the API-facing insight.Repository and
// the worker-facing pipeline store.
package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// Repo is a Postgres-backed pipeline repository.
type Repo struct{ db *sql.DB }

// NewRepo creates a Postgres-backed repository.
func NewRepo(db *sql.DB) *Repo { return &Repo{db: db} }

// jsonArg marshals v for a jsonb column parameter.
func jsonArg(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal jsonb: %w", err)
	}
	return b, nil
}
