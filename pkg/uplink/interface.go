package uplink

import (
	"context"

	"github.com/heatlink/heatlink/pkg/types"
)

// Session is one authenticated connection to the uplink cloud API, scoped to
// the heat pump systems the account owns.
type Session interface {
	// Systems returns the system identifiers this session can address.
	Systems(ctx context.Context) ([]int, error)

	// PutSmarthomeMode sets the smart home operating mode of a system.
	PutSmarthomeMode(ctx context.Context, system int, mode types.SmarthomeMode) error

	// PutParameter writes a named parameter on a system.
	PutParameter(ctx context.Context, system int, parameter, value string) error

	// GetParameter reads a named parameter from a system.
	GetParameter(ctx context.Context, system int, parameter string) (types.Parameter, error)

	// PostSmarthomeThermostat publishes a virtual thermostat reading for a system.
	PostSmarthomeThermostat(ctx context.Context, system int, thermostat types.Thermostat) error
}
