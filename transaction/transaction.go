// Package transaction runs a unit of work against the datastore while collecting compensating
// actions for side effects the datastore can't roll back, such as calls to remote services.
//
// A scope either commits and then fires its success callbacks, or rolls back and runs its
// compensations newest first. Compensations are best effort and only live as long as the scope:
// nothing is persisted, so a crash mid-scope loses them.
package transaction

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

const defaultTimeout = 30 * time.Second

// Error is a failure of the datastore transaction itself, as opposed to the work inside it
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transaction %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Recorder is told how each compensation went
type Recorder interface {
	CompensationRun(failed bool)
}

// Coordinator opens scopes over a database
type Coordinator struct {
	db       *sql.DB
	timeout  time.Duration
	logger   *slog.Logger
	recorder Recorder
}

type Option func(*Coordinator)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithTimeout bounds how long a scope may hold its transaction open
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		c.timeout = d
	}
}

func WithRecorder(r Recorder) Option {
	return func(c *Coordinator) {
		c.recorder = r
	}
}

func New(db *sql.DB, opts ...Option) *Coordinator {
	c := &Coordinator{db: db, timeout: defaultTimeout, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Scope is the unit of work handed to Run
type Scope struct {
	tx            *sql.Tx
	compensations []func() error
	onSuccess     []func()
}

// Tx is the datastore transaction of the scope
func (s *Scope) Tx() *sql.Tx {
	return s.tx
}

// Compensate registers an action to undo a side effect. It only runs if the scope fails.
func (s *Scope) Compensate(action func() error) {
	s.compensations = append(s.compensations, action)
}

// OnSuccess registers an action to run once the transaction has committed
func (s *Scope) OnSuccess(action func()) {
	s.onSuccess = append(s.onSuccess, action)
}

// Run executes fn inside a new scope. The scope is detached from ctx's cancellation so that a
// caller going away can't leave it half applied; it is still bounded by the coordinator timeout.
// The error returned by fn is returned unchanged. A failed begin or commit is returned as *Error.
func (c *Coordinator) Run(ctx context.Context, fn func(ctx context.Context, s *Scope) error) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return &Error{Op: "begin", Err: err}
	}
	s := &Scope{tx: tx}

	defer func() {
		if p := recover(); p != nil {
			c.fail(s, fmt.Errorf("panic: %v", p))
			panic(p)
		}
	}()

	if err := fn(ctx, s); err != nil {
		c.fail(s, err)
		return err
	}

	if err := tx.Commit(); err != nil {
		c.compensate(s, err)
		return &Error{Op: "commit", Err: err}
	}

	for _, action := range s.onSuccess {
		action()
	}
	return nil
}

func (c *Coordinator) fail(s *Scope, cause error) {
	if err := s.tx.Rollback(); err != nil {
		c.logger.Error("Error rolling back transaction", "error", err, "cause", cause)
	}
	c.compensate(s, cause)
}

func (c *Coordinator) compensate(s *Scope, cause error) {
	for i := len(s.compensations) - 1; i >= 0; i-- {
		err := runCompensation(s.compensations[i])
		if err != nil {
			c.logger.Error("Compensating action failed", "error", err, "cause", cause)
		}
		if c.recorder != nil {
			c.recorder.CompensationRun(err != nil)
		}
	}
}

// runCompensation turns a panicking compensation into an error so the remaining ones still run
func runCompensation(action func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("compensation panicked: %v", p)
		}
	}()
	return action()
}
