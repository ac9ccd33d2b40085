package repository

import "errors"

// ErrConflict is returned by conditional writes that matched no row because
// another request consumed or replaced the record first.
var ErrConflict = errors.New("record already consumed or replaced")
