package store

import "errors"

// ErrNotFound is returned by conditional writes that matched no row,
// e.g. reinforcing a fact that was pruned or closing a session that is not OPEN.
var ErrNotFound = errors.New("store: no matching record")
