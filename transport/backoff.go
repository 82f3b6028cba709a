package transport

import "time"

const (
	DefaultReconnectInterval = 5 * time.Second
	DefaultDialTimeout       = 10 * time.Second

	// growing delays without MaxInterval stop here
	backoffCeiling = time.Hour
)

// Backoff configures the delay before each reconnection attempt.
// The zero value retries every DefaultReconnectInterval.
type Backoff struct {
	Interval    time.Duration // first delay, default 5s
	MaxInterval time.Duration // cap for grown delays, 0 means one hour
	Factor      float64       // growth per attempt, values <= 1 keep the delay constant
}

// Delay calculates the backoff duration for a given attempt number.
// With Factor 2 and a 60s cap this follows: 5s, 10s, 20s, 40s, 60s (max)
func (b Backoff) Delay(attempt int) time.Duration {
	interval := b.Interval
	if interval <= 0 {
		interval = DefaultReconnectInterval
	}
	if attempt <= 0 || b.Factor <= 1 {
		return b.capped(interval)
	}

	ceiling := b.MaxInterval
	if ceiling <= 0 {
		ceiling = backoffCeiling
	}
	backoff := interval
	for i := 0; i < attempt; i++ {
		backoff = time.Duration(float64(backoff) * b.Factor)
		if backoff > ceiling {
			return ceiling
		}
	}
	return backoff
}

func (b Backoff) capped(d time.Duration) time.Duration {
	if b.MaxInterval > 0 && d > b.MaxInterval {
		return b.MaxInterval
	}
	return d
}
