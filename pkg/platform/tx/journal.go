package tx

import "context"

type journalKey struct{}

// journal collects the compensating actions of in-memory writes made during
// one LockRunner call.
type journal struct {
	undo []func()
}

// OnRollback registers fn to run if the enclosing LockRunner call returns an
// error. Compensations run in reverse registration order. Outside a
// LockRunner call it does nothing: Postgres stores are undone by their
// transaction.
func OnRollback(ctx context.Context, fn func()) {
	if j, ok := ctx.Value(journalKey{}).(*journal); ok {
		j.undo = append(j.undo, fn)
	}
}

func (j *journal) rollback() {
	for i := len(j.undo) - 1; i >= 0; i-- {
		j.undo[i]()
	}
	j.undo = nil
}
