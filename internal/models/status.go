package models

import "time"

// ConnState models backing-store connectivity as an explicit enum instead of
// a free-form string convention.
type ConnState string

const (
	Connected    ConnState = "connected"
	Disconnected ConnState = "disconnected"
)

// StateFor maps a ping result to a connectivity state
func StateFor(err error) ConnState {
	if err != nil {
		return Disconnected
	}
	return Connected
}

// SystemStatus is the diagnostic payload of /api/system/status
type SystemStatus struct {
	Database  ConnState `json:"database"`
	Redis     ConnState `json:"redis"`
	Timestamp time.Time `json:"timestamp"`
}
