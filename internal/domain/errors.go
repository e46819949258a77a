package domain

import "errors"

// ErrNotFound signals a storage point lookup that matched no row. Protocol
// code maps it into the OAuth taxonomy; it must never leak which specific
// lookup failed on the grant paths.
var ErrNotFound = errors.New("record not found")
