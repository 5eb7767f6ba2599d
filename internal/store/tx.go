package store

import (
	"context"
	"database/sql"
	"fmt"
)

// DBTX is the statement surface shared by *sql.DB and *sql.Tx. Store
// mutations take it explicitly so a caller can thread one transaction
// through several sub-operations.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Tx is the lifecycle surface of *sql.Tx.
type Tx interface {
	Commit() error
	Rollback() error
}

// UnitOfWork bounds a set of writes that commit or roll back together.
// Deferred actions queued with AfterCommit run exactly once, in order,
// after the underlying transaction has committed; they never run on
// rollback. Live-push fan-out goes through AfterCommit so nothing is
// announced for work that might still roll back.
type UnitOfWork struct {
	tx    Tx
	q     DBTX
	done  bool
	after []func()
}

func NewUnitOfWork(tx Tx, q DBTX) *UnitOfWork {
	return &UnitOfWork{tx: tx, q: q}
}

// DB returns the transactional statement handle.
func (u *UnitOfWork) DB() DBTX {
	return u.q
}

// AfterCommit queues a fire-and-forget action to run once the unit has
// committed. When the unit is borrowed from an outer caller the action
// waits for the outer commit.
func (u *UnitOfWork) AfterCommit(fn func()) {
	u.after = append(u.after, fn)
}

func (u *UnitOfWork) Commit() error {
	if u.done {
		return nil
	}
	if err := u.tx.Commit(); err != nil {
		u.done = true
		return fmt.Errorf("commit unit of work: %w", err)
	}
	u.done = true
	for _, fn := range u.after {
		fn()
	}
	u.after = nil
	return nil
}

// Rollback is a no-op once the unit has committed or rolled back, so it
// is safe to defer unconditionally.
func (u *UnitOfWork) Rollback() error {
	if u.done {
		return nil
	}
	u.done = true
	u.after = nil
	if err := u.tx.Rollback(); err != nil {
		return fmt.Errorf("rollback unit of work: %w", err)
	}
	return nil
}

// TxManager opens units of work; *PostgresStore implements it.
type TxManager interface {
	Begin(ctx context.Context) (*UnitOfWork, error)
}

// Enlist returns the supplied unit unchanged, or begins a fresh one when
// uow is nil. owned reports whether the caller is responsible for
// commit/rollback; a borrowed unit belongs to the outer caller and any
// error must propagate there untouched.
func Enlist(ctx context.Context, tm TxManager, uow *UnitOfWork) (u *UnitOfWork, owned bool, err error) {
	if uow != nil {
		return uow, false, nil
	}
	u, err = tm.Begin(ctx)
	if err != nil {
		return nil, false, err
	}
	return u, true, nil
}
