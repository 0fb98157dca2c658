package detect

import "time"

// Debouncer suppresses detections closer than interval to the last accepted
// one. It is owned by a single detection loop and is not safe for concurrent
// use.
type Debouncer struct {
	interval time.Duration
	last     time.Time
	accepted bool
}

func NewDebouncer(interval time.Duration) *Debouncer {
	return &Debouncer{interval: interval}
}

// Accept reports whether a raw match at now should be delivered. The first
// call always accepts. A rejected call leaves state unchanged.
func (d *Debouncer) Accept(now time.Time) bool {
	if d.accepted && now.Sub(d.last) < d.interval {
		return false
	}
	d.last = now
	d.accepted = true
	return true
}

// Last returns the last accepted timestamp, if any.
func (d *Debouncer) Last() (time.Time, bool) {
	return d.last, d.accepted
}
