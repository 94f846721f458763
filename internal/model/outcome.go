package model

// Outcome is the classification of a single probe. Only OutcomeLive enters
// the discovery record; everything else is persisted to the not-live log
// and the distinction survives in logs only.
type Outcome string

const (
	OutcomeLive   Outcome = "live"
	OutcomeParked Outcome = "parked"
	OutcomeEmpty  Outcome = "empty"
	OutcomeError  Outcome = "error"
)

func (o Outcome) String() string {
	return string(o)
}

// NotLive reports whether the outcome belongs to the not-live log.
func (o Outcome) NotLive() bool {
	return o != OutcomeLive
}
