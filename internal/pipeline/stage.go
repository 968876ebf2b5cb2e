// Package pipeline runs an item through an ordered list of stages. Steps
// inside a stage run in parallel; stages run one after another.
package pipeline

import (
	"context"
)

// Step is one unit of work on an item. Steps of the same stage run
// concurrently on the same item, so they must not write the same fields.
type Step[T any] func(ctx context.Context, item *T) error

// Stage groups steps that may run in parallel for a single item.
type Stage[T any] struct {
	name  string
	steps []Step[T]
}

func NewStage[T any](name string, steps ...Step[T]) Stage[T] {
	return Stage[T]{name: name, steps: steps}
}
