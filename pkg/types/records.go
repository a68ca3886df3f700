package types

import "time"

// Service names used in call records.
const (
	ServiceSetSmarthomeMode = "setSmarthomeMode"
	ServiceSetParameter     = "setParameter"
	ServiceGetParameter     = "getParameter"
	ServiceSetThermostat    = "setThermostat"
)

// CallRecord is the audit record of one service call forwarded to the
// uplink cloud.
type CallRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	System    int       `json:"system"`

	// Request detail, populated depending on the service.
	Mode       SmarthomeMode `json:"mode,omitempty"`
	Parameter  string        `json:"parameter,omitempty"`
	Value      string        `json:"value,omitempty"`
	Thermostat *Thermostat   `json:"thermostat,omitempty"`

	// Error is empty when the backend call succeeded.
	Error string `json:"error,omitempty"`
}

// Notification is a persistent user-facing notification, the service's
// equivalent of the home-automation host's notification panel.
type Notification struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}
