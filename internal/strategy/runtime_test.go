package strategy

import (
	"testing"

	"github.com/quantbay/stratexec/internal/logger"
	"github.com/quantbay/stratexec/internal/types"
	"github.com/quantbay/stratexec/pkg/errors"
	"github.com/stretchr/testify/suite"
)

// stubStrategy counts hook invocations.
type stubStrategy struct {
	initErr   error
	barErr    error
	initCalls int
	barCalls  int
	events    []types.OrderEvent
}

func (s *stubStrategy) Name() string { return "stub" }

func (s *stubStrategy) OnInit(ctx *Context) error {
	s.initCalls++

	return s.initErr
}

func (s *stubStrategy) OnBar(bar types.Bar) error {
	s.barCalls++

	return s.barErr
}

func (s *stubStrategy) OnOrderEvent(event types.OrderEvent) {
	s.events = append(s.events, event)
}

type RuntimeTestSuite struct {
	suite.Suite
	stub    *stubStrategy
	runtime *Runtime
}

func (s *RuntimeTestSuite) SetupTest() {
	s.stub = &stubStrategy{}
	s.runtime = NewRuntime(s.stub, &Context{
		Market:  &fakeDataPort{},
		Trading: &fakeExecutionPort{},
		Logger:  logger.NewNopLogger(),
	})
}

func (s *RuntimeTestSuite) TestLifecycleHappyPath() {
	s.Equal(StateCreated, s.runtime.State())

	s.Require().NoError(s.runtime.Init())
	s.Equal(StateInitialized, s.runtime.State())
	s.Equal(1, s.stub.initCalls)

	s.Require().NoError(s.runtime.HandleBar(types.Bar{Symbol: "600000.SH"}))
	s.Equal(StateRunning, s.runtime.State())

	s.runtime.Stop()
	s.Equal(StateStopped, s.runtime.State())
}

func (s *RuntimeTestSuite) TestDoubleInitRejected() {
	s.Require().NoError(s.runtime.Init())

	err := s.runtime.Init()
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeInvalidLifecycle))
	s.Equal(1, s.stub.initCalls)
}

func (s *RuntimeTestSuite) TestBarBeforeInitRejected() {
	err := s.runtime.HandleBar(types.Bar{Symbol: "600000.SH"})
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeInvalidLifecycle))
	s.Zero(s.stub.barCalls)
}

func (s *RuntimeTestSuite) TestStoppedIsTerminal() {
	s.Require().NoError(s.runtime.Init())
	s.runtime.Stop()

	err := s.runtime.HandleBar(types.Bar{Symbol: "600000.SH"})
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeInvalidLifecycle))

	err = s.runtime.Init()
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeInvalidLifecycle))
}

func (s *RuntimeTestSuite) TestInitFailureWrapped() {
	s.stub.initErr = errors.New(errors.ErrCodeDataUnavailable, "no reference data")

	err := s.runtime.Init()
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeStrategyInitFailed))
	s.Equal(StateCreated, s.runtime.State())
}

func (s *RuntimeTestSuite) TestOrderEventsDroppedAfterStop() {
	s.Require().NoError(s.runtime.Init())
	s.runtime.HandleOrderEvent(types.OrderEvent{Kind: types.OrderEventAccepted, Remark: "r-1"})
	s.Len(s.stub.events, 1)

	s.runtime.Stop()
	s.runtime.HandleOrderEvent(types.OrderEvent{Kind: types.OrderEventFilled, Remark: "r-1"})
	s.Len(s.stub.events, 1)
}

func (s *RuntimeTestSuite) TestTickIgnoredWithoutHandler() {
	s.Require().NoError(s.runtime.Init())

	s.Require().NoError(s.runtime.HandleTick(types.Tick{Symbol: "600000.SH"}))
	// No tick handler, so the runtime stays out of the Running state.
	s.Equal(StateInitialized, s.runtime.State())
}

func TestRuntimeTestSuite(t *testing.T) {
	suite.Run(t, new(RuntimeTestSuite))
}
