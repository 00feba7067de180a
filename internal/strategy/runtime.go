package strategy

import (
	"sync"

	"github.com/quantbay/stratexec/internal/types"
	"github.com/quantbay/stratexec/pkg/errors"
	"go.uber.org/zap"
)

// State is the lifecycle state of a hosted strategy.
type State string

const (
	StateCreated     State = "CREATED"
	StateInitialized State = "INITIALIZED"
	StateRunning     State = "RUNNING"
	StateStopped     State = "STOPPED"
)

// Runtime hosts one strategy and enforces the
// Created -> Initialized -> Running -> Stopped lifecycle. Stopped is
// terminal. All methods except HandleOrderEvent must be called from the
// replay or polling goroutine; HandleOrderEvent may run on the event
// dispatch goroutine, so the state field is guarded.
type Runtime struct {
	strategy Strategy
	ctx      *Context

	mu    sync.RWMutex
	state State
}

// NewRuntime returns a runtime in the Created state.
func NewRuntime(strategy Strategy, ctx *Context) *Runtime {
	return &Runtime{
		strategy: strategy,
		ctx:      ctx,
		state:    StateCreated,
	}
}

// State returns the current lifecycle state.
func (r *Runtime) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.state
}

// Init runs the strategy's OnInit hook. Valid only in the Created
// state.
func (r *Runtime) Init() error {
	if state := r.State(); state != StateCreated {
		return errors.Newf(errors.ErrCodeInvalidLifecycle, "cannot initialize strategy %q in state %s", r.strategy.Name(), state)
	}

	if err := r.strategy.OnInit(r.ctx); err != nil {
		return errors.Wrapf(errors.ErrCodeStrategyInitFailed, err, "strategy %q failed to initialize", r.strategy.Name())
	}

	r.setState(StateInitialized)

	return nil
}

// HandleBar delivers one bar to the strategy. The first delivered
// market event moves the runtime to Running.
func (r *Runtime) HandleBar(bar types.Bar) error {
	if err := r.enterRunning(); err != nil {
		return err
	}

	if err := r.strategy.OnBar(bar); err != nil {
		return errors.Wrapf(errors.ErrCodeStrategyRuntimeError, err, "strategy %q failed on bar %s", r.strategy.Name(), bar.Symbol)
	}

	return nil
}

// HandleTick delivers one tick when the strategy supports tick
// granularity, and is a no-op otherwise.
func (r *Runtime) HandleTick(tick types.Tick) error {
	handler, ok := r.strategy.(TickHandler)
	if !ok {
		return nil
	}

	if err := r.enterRunning(); err != nil {
		return err
	}

	if err := handler.OnTick(tick); err != nil {
		return errors.Wrapf(errors.ErrCodeStrategyRuntimeError, err, "strategy %q failed on tick %s", r.strategy.Name(), tick.Symbol)
	}

	return nil
}

// HandleOrderEvent forwards an asynchronous order outcome. Safe to call
// from the adapter's dispatch goroutine; events arriving after Stop are
// dropped.
func (r *Runtime) HandleOrderEvent(event types.OrderEvent) {
	if r.State() == StateStopped {
		r.ctx.Logger.Debug("dropping order event after stop",
			zap.String("remark", event.Remark),
			zap.String("kind", string(event.Kind)))

		return
	}

	r.strategy.OnOrderEvent(event)
}

// Stop moves the runtime to the terminal state. Idempotent.
func (r *Runtime) Stop() {
	r.setState(StateStopped)
}

func (r *Runtime) setState(state State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.state = state
}

func (r *Runtime) enterRunning() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case StateInitialized:
		r.state = StateRunning
	case StateRunning:
	default:
		return errors.Newf(errors.ErrCodeInvalidLifecycle, "cannot deliver market event to strategy %q in state %s", r.strategy.Name(), r.state)
	}

	return nil
}
