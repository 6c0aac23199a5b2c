// Package objectstore reads, moves and presigns catalog files in object
// storage. S3 is the production backend; Memory serves tests and local runs.
package objectstore

import "errors"

// ErrNotFound is returned when the requested object does not exist.
var ErrNotFound = errors.New("object not found")
