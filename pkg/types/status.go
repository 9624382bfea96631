package types

import "time"

// FetchRecord is the outcome of one calibration fetch.
type FetchRecord struct {
	Time     time.Time     `json:"time"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Alert is one message a calibration source raised.
type Alert struct {
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Status describes the daemon's calibration cache.
// This struct is shared between the daemon and client packages.
type Status struct {
	Source              string        `json:"source"`
	Available           bool          `json:"available"`
	FetchedAt           time.Time     `json:"fetchedAt,omitempty"`
	LastError           string        `json:"lastError,omitempty"`
	ConsecutiveFailures int           `json:"consecutiveFailures"`
	Fetches             []FetchRecord `json:"fetches"`
}
