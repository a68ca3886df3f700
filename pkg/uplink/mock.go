package uplink

import (
	"context"

	"github.com/heatlink/heatlink/pkg/types"
	"github.com/stretchr/testify/mock"
)

// MockSession is a testify mock of the Session interface for tests.
type MockSession struct {
	mock.Mock
}

var _ Session = (*MockSession)(nil)

func (m *MockSession) Systems(ctx context.Context) ([]int, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int), args.Error(1)
}

func (m *MockSession) PutSmarthomeMode(ctx context.Context, system int, mode types.SmarthomeMode) error {
	args := m.Called(ctx, system, mode)
	return args.Error(0)
}

func (m *MockSession) PutParameter(ctx context.Context, system int, parameter, value string) error {
	args := m.Called(ctx, system, parameter, value)
	return args.Error(0)
}

func (m *MockSession) GetParameter(ctx context.Context, system int, parameter string) (types.Parameter, error) {
	args := m.Called(ctx, system, parameter)
	return args.Get(0).(types.Parameter), args.Error(1)
}

func (m *MockSession) PostSmarthomeThermostat(ctx context.Context, system int, thermostat types.Thermostat) error {
	args := m.Called(ctx, system, thermostat)
	return args.Error(0)
}
