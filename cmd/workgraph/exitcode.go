package main

import (
	"errors"

	"github.com/workgraph/workgraph/internal/store"
	"github.com/workgraph/workgraph/internal/workgraph"
)

// exitCodeFor maps an error to the CLI's exit code convention: 0 success
// (never reached here), 1 user error, 2 system error, 3 not-found.
func exitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	var notFound *workgraph.NotFoundError
	if errors.As(err, &notFound) {
		return 3
	}
	var invariant *workgraph.InvariantError
	if errors.As(err, &invariant) {
		return 1
	}
	var dup *workgraph.DuplicateIDError
	if errors.As(err, &dup) {
		return 1
	}
	var locked *store.StoreLockedError
	if errors.As(err, &locked) {
		return 2
	}
	return 2
}
