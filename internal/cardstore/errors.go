package cardstore

import (
	"errors"
	"fmt"
)

// ErrLoad matches every error returned by Load. Use errors.Is to check.
var ErrLoad = errors.New("cardstore: load failed")

// LoadError reports a card file that is missing, malformed or holds an
// invalid record. It is fatal: no study flow can run without cards.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("cardstore: load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

func (e *LoadError) Is(target error) bool { return target == ErrLoad }
