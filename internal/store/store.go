// Package store is the pgx-backed persistence layer for PODx: a thin Store{DB *pgxpool.Pool}
// wrapper, raw parameterized SQL, no ORM. Schema is assumed to already exist in the target
// database; no migrations are shipped here.
package store

import (
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned by single-row lookups when no matching row exists.
var ErrNotFound = errors.New("store: not found")

type Store struct{ DB *pgxpool.Pool }

func New(db *pgxpool.Pool) *Store { return &Store{DB: db} }
