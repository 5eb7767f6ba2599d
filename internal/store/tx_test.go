package store

import (
	"context"
	"errors"
	"testing"
)

type memTx struct {
	commits   int
	rollbacks int
	commitErr error
}

func (m *memTx) Commit() error {
	m.commits++
	return m.commitErr
}

func (m *memTx) Rollback() error {
	m.rollbacks++
	return nil
}

type memTxManager struct {
	last     *memTx
	beginErr error
}

func (m *memTxManager) Begin(ctx context.Context) (*UnitOfWork, error) {
	if m.beginErr != nil {
		return nil, m.beginErr
	}
	m.last = &memTx{}
	return NewUnitOfWork(m.last, nil), nil
}

func TestAfterCommitRunsInOrderAfterCommit(t *testing.T) {
	tx := &memTx{}
	uow := NewUnitOfWork(tx, nil)

	var order []int
	uow.AfterCommit(func() { order = append(order, 1) })
	uow.AfterCommit(func() { order = append(order, 2) })

	if len(order) != 0 {
		t.Fatalf("hooks ran before commit: %v", order)
	}
	if err := uow.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("hook order = %v, want [1 2]", order)
	}
}

func TestAfterCommitSkippedOnRollback(t *testing.T) {
	tx := &memTx{}
	uow := NewUnitOfWork(tx, nil)

	ran := false
	uow.AfterCommit(func() { ran = true })

	if err := uow.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if ran {
		t.Fatal("hook ran after rollback")
	}
	if tx.rollbacks != 1 {
		t.Fatalf("rollbacks = %d, want 1", tx.rollbacks)
	}
}

func TestAfterCommitSkippedOnCommitError(t *testing.T) {
	tx := &memTx{commitErr: errors.New("deadlock")}
	uow := NewUnitOfWork(tx, nil)

	ran := false
	uow.AfterCommit(func() { ran = true })

	if err := uow.Commit(); err == nil {
		t.Fatal("expected commit error")
	}
	if ran {
		t.Fatal("hook ran after failed commit")
	}
}

func TestCommitAndRollbackAreIdempotent(t *testing.T) {
	tx := &memTx{}
	uow := NewUnitOfWork(tx, nil)

	runs := 0
	uow.AfterCommit(func() { runs++ })

	if err := uow.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := uow.Commit(); err != nil {
		t.Fatalf("second commit: %v", err)
	}
	if err := uow.Rollback(); err != nil {
		t.Fatalf("rollback after commit: %v", err)
	}
	if runs != 1 {
		t.Fatalf("hook runs = %d, want 1", runs)
	}
	if tx.commits != 1 || tx.rollbacks != 0 {
		t.Fatalf("tx commits=%d rollbacks=%d, want 1/0", tx.commits, tx.rollbacks)
	}
}

func TestEnlistBorrowsExistingUnit(t *testing.T) {
	tm := &memTxManager{}
	outer, err := tm.Begin(context.Background())
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	uow, owned, err := Enlist(context.Background(), tm, outer)
	if err != nil {
		t.Fatalf("enlist: %v", err)
	}
	if owned {
		t.Fatal("borrowed unit reported as owned")
	}
	if uow != outer {
		t.Fatal("enlist did not return the supplied unit")
	}
}

func TestEnlistBeginsWhenNil(t *testing.T) {
	tm := &memTxManager{}

	uow, owned, err := Enlist(context.Background(), tm, nil)
	if err != nil {
		t.Fatalf("enlist: %v", err)
	}
	if !owned {
		t.Fatal("fresh unit reported as borrowed")
	}
	if err := uow.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if tm.last.commits != 1 {
		t.Fatalf("commits = %d, want 1", tm.last.commits)
	}
}

func TestEnlistPropagatesBeginError(t *testing.T) {
	tm := &memTxManager{beginErr: errors.New("pool exhausted")}

	if _, _, err := Enlist(context.Background(), tm, nil); err == nil {
		t.Fatal("expected begin error")
	}
}
