package localdb

import "fmt"

// StorageError reports a failed store operation on a table.
type StorageError struct {
	Op    string
	Table Table
	Err   error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("localdb: %s %s: %v", e.Op, e.Table, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func wrap(op string, table Table, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Table: table, Err: err}
}

// Wrap is wrap for sibling packages writing their own keys into a table.
func Wrap(op string, table Table, err error) error { return wrap(op, table, err) }
