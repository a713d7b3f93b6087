package gallery

import (
	"errors"
	"fmt"
)

// ErrCancelled is reported by a bulk sync run that observed
// cooperative cancellation mid-scan. Batches committed before the
// cancellation point are kept.
var ErrCancelled = errors.New("sync cancelled")

// StorageError wraps a drawable-store or catalog I/O or transaction
// failure. Any StorageError raised inside a bulk run aborts the run.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// LookupError wraps a failure to read a single file's attributes from
// the catalog. Inside a bulk run it aborts the run like any other
// per-file error; an incremental task logs and absorbs it.
type LookupError struct {
	FileID int64
	Err    error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("failed to look up file %d: %v", e.FileID, e.Err)
}

func (e *LookupError) Unwrap() error {
	return e.Err
}
