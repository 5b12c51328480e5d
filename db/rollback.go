package db

// Rollbacker is satisfied by *sql.Tx and *borp.Transaction.
type Rollbacker interface {
	Rollback() error
}

// Rollback rolls back tx and returns the original error, suppressing any
// rollback failure so the original cause surfaces to the caller - the
// pattern used throughout sa.go's `err = Rollback(tx, err); return` calls,
// and required by spec.md §7 ("Rollback failures inside the sequencer are
// suppressed so the original cause is reported").
func Rollback(tx Rollbacker, err error) error {
	_ = tx.Rollback()
	return err
}
