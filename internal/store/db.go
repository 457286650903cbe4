// Package store is the storage engine (C2): a pooled set of read handles
// plus a single mutex-guarded write handle over one embedded SQLite file,
// grounded on the WAL + foreign_keys connection string from
// other_examples' tangled.sh-mirror db.go and the BEGIN IMMEDIATE write
// discipline from other_examples' beads storage.go.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/cotoami/cotoami-go/internal/logging"
)

// Database holds the two connection classes described in spec.md §4.1: a
// pooled read *sql.DB (BEGIN DEFERRED, snapshot isolation under WAL) and a
// single write *sql.DB (BEGIN IMMEDIATE, so writers never collide with
// SQLITE_BUSY_SNAPSHOT), guarded by writeMu for the duration of one
// transaction.
type Database struct {
	read  *sql.DB
	write *sql.DB
	writeMu sync.Mutex
	log   logging.Logger
}

// Open opens (or creates) the SQLite file at path and applies the schema.
func Open(path string, log logging.Logger) (*Database, error) {
	readDSN := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=1&_synchronous=NORMAL&_txlock=deferred", path)
	writeDSN := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=1&_synchronous=NORMAL&_txlock=immediate", path)

	read, err := sql.Open("sqlite3", readDSN)
	if err != nil {
		return nil, fmt.Errorf("open read pool: %w", err)
	}
	read.SetMaxOpenConns(8)

	write, err := sql.Open("sqlite3", writeDSN)
	if err != nil {
		return nil, fmt.Errorf("open write handle: %w", err)
	}
	write.SetMaxOpenConns(1)

	db := &Database{read: read, write: write, log: log}
	if _, err := db.write.Exec(schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return db, nil
}

// Close releases both connection pools.
func (db *Database) Close() error {
	err1 := db.read.Close()
	err2 := db.write.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// Context exposes whichever handle is currently in force to a composite
// operation, so sub-operations can be sequenced within one transaction
// rather than each opening their own.
type Context struct {
	ctx context.Context
	tx  *sql.Tx
}

// Tx returns the transaction handle in force for this operation.
func (c *Context) Tx() *sql.Tx { return c.tx }

// Std returns the context.Context this operation is running under.
func (c *Context) Std() context.Context { return c.ctx }

// ReadOp closes over a read handle: a snapshot-isolated query or sequence
// of queries.
type ReadOp[T any] func(ctx *Context) (T, error)

// WriteOp closes over the write handle: a single write transaction, or a
// sequence of reads/writes that must commit atomically together.
type WriteOp[T any] func(ctx *Context) (T, error)

// Read runs op inside a new DEFERRED read transaction.
func Read[T any](ctx context.Context, db *Database, op ReadOp[T]) (T, error) {
	var zero T
	tx, err := db.read.BeginTx(ctx, nil)
	if err != nil {
		return zero, fmt.Errorf("begin read tx: %w", err)
	}
	result, err := op(&Context{ctx: ctx, tx: tx})
	if err != nil {
		_ = tx.Rollback()
		return zero, err
	}
	if err := tx.Commit(); err != nil {
		return zero, fmt.Errorf("commit read tx: %w", err)
	}
	return result, nil
}

// Write runs op inside a new IMMEDIATE write transaction, holding the write
// mutex for its whole duration so no two write transactions ever overlap.
func Write[T any](ctx context.Context, db *Database, op WriteOp[T]) (T, error) {
	var zero T
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	tx, err := db.write.BeginTx(ctx, nil)
	if err != nil {
		return zero, fmt.Errorf("begin write tx: %w", err)
	}
	result, err := op(&Context{ctx: ctx, tx: tx})
	if err != nil {
		_ = tx.Rollback()
		return zero, err
	}
	if err := tx.Commit(); err != nil {
		return zero, fmt.Errorf("commit write tx: %w", err)
	}
	return result, nil
}
