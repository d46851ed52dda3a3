package monitor

import "time"

// Status is the last observed health of the stores the workflow depends on.
type Status struct {
	Database     bool      `json:"database"`
	Driver       string    `json:"driver"`
	Redis        bool      `json:"redis"`
	RedisEnabled bool      `json:"redis_enabled"`
	Buffer       bool      `json:"buffer"`
	BufferSize   int       `json:"buffer_size"`
	BufferFailed int       `json:"buffer_failed"`
	LastCheck    time.Time `json:"last_check"`
}
