package pipeline

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// StageError reports which stage stopped a run.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Pipeline is generic over the item type T.
type Pipeline[T any] struct {
	stages []Stage[T]
}

func New[T any](stages ...Stage[T]) *Pipeline[T] {
	return &Pipeline[T]{stages: stages}
}

// Run applies every stage to item in order. All steps of a stage are
// started together and must finish before the next stage begins. The first
// failing step cancels the context of its siblings and ends the run with a
// *StageError; later stages are not started.
func (p *Pipeline[T]) Run(ctx context.Context, item *T) error {
	for _, stage := range p.stages {
		if err := ctx.Err(); err != nil {
			return &StageError{Stage: stage.name, Err: err}
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, step := range stage.steps {
			step := step
			g.Go(func() error {
				return step(gctx, item)
			})
		}
		if err := g.Wait(); err != nil {
			return &StageError{Stage: stage.name, Err: err}
		}
	}
	return nil
}

// Process runs each item received on in through the pipeline until in is
// closed. done, when set, is called with the outcome of every item; failed
// items are logged and do not stop processing.
func (p *Pipeline[T]) Process(ctx context.Context, in <-chan *T, done func(item *T, err error)) {
	for item := range in {
		err := p.Run(ctx, item)
		if err != nil {
			log.WithField("prefix", "pipeline").WithError(err).Warn("item failed")
		}
		if done != nil {
			done(item, err)
		}
	}
}
