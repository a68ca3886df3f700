package types

import (
	"fmt"
	"math"
)

// SmarthomeMode is the operating mode of a heat pump system's smart home
// integration as the uplink cloud API names it.
type SmarthomeMode string

const (
	SmarthomeModeDefault  SmarthomeMode = "DEFAULT_OPERATION"
	SmarthomeModeAway     SmarthomeMode = "AWAY_FROM_HOME"
	SmarthomeModeVacation SmarthomeMode = "VACATION"
)

// SmarthomeModes lists every mode the uplink API accepts.
var SmarthomeModes = []SmarthomeMode{
	SmarthomeModeDefault,
	SmarthomeModeAway,
	SmarthomeModeVacation,
}

// Valid returns true if the mode is one the uplink API accepts.
func (m SmarthomeMode) Valid() bool {
	for _, known := range SmarthomeModes {
		if m == known {
			return true
		}
	}
	return false
}

// ParseSmarthomeMode validates a raw mode string.
func ParseSmarthomeMode(s string) (SmarthomeMode, error) {
	m := SmarthomeMode(s)
	if !m.Valid() {
		return "", fmt.Errorf("unknown smarthome mode %q", s)
	}
	return m, nil
}

// Thermostat is a virtual thermostat reading published to the uplink cloud.
// Temperatures are in tenths of a degree, the unit the API expects; use
// ScaleTemp to convert from degrees.
type Thermostat struct {
	ExternalID     int    `json:"externalId"`
	Name           string `json:"name"`
	ActualTemp     *int   `json:"actualTemp"`
	TargetTemp     *int   `json:"targetTemp"`
	ValvePosition  *int   `json:"valvePosition"`
	ClimateSystems []int  `json:"climateSystems"`
}

// Validate checks the reading against the constraints the uplink API
// enforces server-side so callers fail before the round-trip.
func (t Thermostat) Validate() error {
	if t.ExternalID <= 0 {
		return fmt.Errorf("thermostat external id must be positive, got %d", t.ExternalID)
	}
	if t.Name == "" {
		return fmt.Errorf("thermostat name cannot be empty")
	}
	if len(t.ClimateSystems) == 0 {
		return fmt.Errorf("thermostat must name at least one climate system")
	}
	if t.ValvePosition != nil && (*t.ValvePosition < 0 || *t.ValvePosition > 100) {
		return fmt.Errorf("valve position must be between 0 and 100, got %d", *t.ValvePosition)
	}
	return nil
}

// ScaleTemp converts a temperature in degrees to the tenths-of-a-degree
// integer the uplink API expects. Nil stays nil so optional fields pass
// through unset.
func ScaleTemp(v *float64) *int {
	if v == nil {
		return nil
	}
	scaled := int(math.Round(*v * 10))
	return &scaled
}

// Parameter is a single heat pump parameter as returned by the uplink API.
// RawValue is the device register value; DisplayValue is the human readable
// form including the unit.
type Parameter struct {
	ParameterID  int    `json:"parameterId"`
	Name         string `json:"name"`
	Title        string `json:"title"`
	Designation  string `json:"designation"`
	Unit         string `json:"unit"`
	DisplayValue string `json:"displayValue"`
	RawValue     int    `json:"rawValue"`
}
