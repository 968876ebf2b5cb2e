// Package store persists trip records. MongoDB and PostgreSQL backends
// offer the same methods; ingest depends only on that method set.
package store

import "errors"

var ErrTripNotFound = errors.New("trip not found")
