// Package repository holds the persistence layer: the session pool, the task
// ledger, media deduplication, collections and users on gorm, plus
// dashboard statistics over the raw pgx pool.
package repository

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned when a mutation targets a row that does not exist.
var ErrNotFound = errors.New("record not found")

// Clock returns the current time. Repositories store UTC.
type Clock func() time.Time

func utcNow() time.Time { return time.Now().UTC() }

// forUpdate adds a row lock on postgres. sqlite serialises writers per
// transaction and has no FOR UPDATE, so it is left unchanged there.
func forUpdate(tx *gorm.DB, skipLocked bool) *gorm.DB {
	if tx.Dialector.Name() != "postgres" {
		return tx
	}
	lock := clause.Locking{Strength: "UPDATE"}
	if skipLocked {
		lock.Options = "SKIP LOCKED"
	}
	return tx.Clauses(lock)
}

// notFoundAsNil maps gorm's not-found error to a nil result.
func notFoundAsNil(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	return err
}
