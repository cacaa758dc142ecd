package forms

import (
	"context"
	"errors"
	"sync"

	"softspot/internal/models"
)

// State is a controller's position in the submission pipeline.
type State string

const (
	StateIdle       State = "idle"
	StateSubmitting State = "submitting"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
)

// ErrInFlight rejects a Submit while another one is running.
var ErrInFlight = errors.New("a submission is already in progress")

// SubmitFunc receives the decoded draft.
type SubmitFunc[T, R any] func(ctx context.Context, input T) (R, error)

// Controller runs idle -> submitting -> succeeded | failed. A failed
// submission returns the controller to idle with the error retained.
type Controller[T, R any] struct {
	schema   Schema
	submit   SubmitFunc[T, R]
	observer func(from, to State)

	mu      sync.Mutex
	state   State
	lastErr error
}

// NewController binds schema to submit.
func NewController[T, R any](schema Schema, submit SubmitFunc[T, R]) *Controller[T, R] {
	return &Controller[T, R]{schema: schema, submit: submit, state: StateIdle}
}

// OnTransition registers fn to observe every state change. It is called with
// the controller lock held and must not call back into the controller.
func (c *Controller[T, R]) OnTransition(fn func(from, to State)) {
	c.mu.Lock()
	c.observer = fn
	c.mu.Unlock()
}

// State returns the current state.
func (c *Controller[T, R]) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the error of the last failed submission or validation.
func (c *Controller[T, R]) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Submit validates draft, decodes it into T and hands it to the submit func.
func (c *Controller[T, R]) Submit(ctx context.Context, draft map[string]any) (R, error) {
	var zero R

	c.mu.Lock()
	if c.state == StateSubmitting {
		c.mu.Unlock()
		return zero, &models.AppError{Code: models.CodeConflict, Message: "A submission is already in progress", Err: ErrInFlight}
	}

	if errs := c.schema.Validate(draft); errs != nil {
		err := models.NewFieldValidationError(errs)
		c.moveLocked(StateIdle)
		c.lastErr = err
		c.mu.Unlock()
		return zero, err
	}

	var input T
	if err := Decode(draft, &input); err != nil {
		appErr := models.NewValidationError("Could not read the form")
		appErr.Err = err
		c.moveLocked(StateIdle)
		c.lastErr = appErr
		c.mu.Unlock()
		return zero, appErr
	}

	c.moveLocked(StateSubmitting)
	c.mu.Unlock()

	result, err := c.submit(ctx, input)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.moveLocked(StateFailed)
		c.moveLocked(StateIdle)
		c.lastErr = err
		return zero, err
	}
	c.moveLocked(StateSucceeded)
	c.lastErr = nil
	return result, nil
}

func (c *Controller[T, R]) moveLocked(to State) {
	from := c.state
	if from == to {
		return
	}
	c.state = to
	if c.observer != nil {
		c.observer(from, to)
	}
}
