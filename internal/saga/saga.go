// Package saga runs an ordered list of steps where every applied step may be undone.
//
// Steps run strictly one after another. When a fatal step fails, compensations of the steps
// applied before it run in reverse order. Best-effort steps never trigger compensation: their
// failures are logged and the saga goes on.
package saga

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nkiryanov/walletmart/internal/logger"
)

const tracerName = "github.com/nkiryanov/walletmart/internal/saga"

type Step struct {
	Name string

	// Mutating action of the step
	Action func(ctx context.Context) error

	// Undo the action; nil when there is nothing to undo
	Compensate func(ctx context.Context) error

	// Failure is logged and ignored, nothing is compensated
	BestEffort bool
}

// Error describes a failed saga
type Error struct {
	Saga string
	Step string

	// Error of the failed step
	Err error

	// Joined errors of compensations that failed, nil if everything was undone
	CompensationErr error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("saga %q failed at step %q: %v", e.Saga, e.Step, e.Err)
	if e.CompensationErr != nil {
		msg += fmt.Sprintf("; compensation failed: %v", e.CompensationErr)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

type Runner struct {
	logger logger.Logger
	tracer trace.Tracer
}

func NewRunner(l logger.Logger) *Runner {
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &Runner{
		logger: l,
		tracer: otel.Tracer(tracerName),
	}
}

// Run executes steps in order.
// Returns *Error if a fatal step failed; in this case all applied steps have been compensated
// unless Error.CompensationErr is set.
func (r *Runner) Run(ctx context.Context, name string, steps ...Step) error {
	ctx, span := r.tracer.Start(ctx, "saga "+name, trace.WithAttributes(attribute.Int("saga.steps", len(steps))))
	defer span.End()

	l := r.logger.With("saga", name)
	applied := make([]Step, 0, len(steps))

	for _, step := range steps {
		err := r.runStep(ctx, step)

		switch {
		case err == nil:
			l.Debug("Saga step done", "step", step.Name)
			applied = append(applied, step)

		case step.BestEffort:
			l.Warn("Best-effort saga step failed, reconciliation required", "step", step.Name, "error", err)

		default:
			l.Warn("Saga step failed, compensating", "step", step.Name, "error", err, "applied", len(applied))
			compErr := r.compensate(ctx, l, applied)

			span.SetStatus(codes.Error, err.Error())
			return &Error{Saga: name, Step: step.Name, Err: err, CompensationErr: compErr}
		}
	}

	return nil
}

func (r *Runner) runStep(ctx context.Context, step Step) error {
	ctx, span := r.tracer.Start(ctx, step.Name, trace.WithAttributes(attribute.Bool("saga.best_effort", step.BestEffort)))
	defer span.End()

	err := step.Action(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	return err
}

// Undo applied steps newest first.
// Keeps going when a compensation fails, so as much as possible is restored.
func (r *Runner) compensate(ctx context.Context, l logger.Logger, applied []Step) error {
	// The request may be cancelled already, compensations still have to reach the store
	ctx = context.WithoutCancel(ctx)

	var errs []error
	for i := len(applied) - 1; i >= 0; i-- {
		step := applied[i]
		if step.Compensate == nil {
			continue
		}

		cctx, span := r.tracer.Start(ctx, "compensate "+step.Name)
		err := step.Compensate(cctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			l.Error("Compensation failed, data left inconsistent", "step", step.Name, "error", err)
			errs = append(errs, fmt.Errorf("compensate %q: %w", step.Name, err))
		} else {
			l.Debug("Saga step compensated", "step", step.Name)
		}
		span.End()
	}

	return errors.Join(errs...)
}
