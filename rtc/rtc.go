// Package rtc reads the modem's real-time clock via +CCLK?.
package rtc

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/quectel/qmodem/at"
	"github.com/quectel/qmodem/info"
)

// Time is the 7-tuple the modem reports: a UTC-offset wall-clock time plus
// its quarter-hour-signed timezone, preserved exactly as the modem encodes
// it rather than folded into a single time.Time (the modem's "zz" field is
// quarter-hours, not hours, and can't be round-tripped through Go's
// time.Time without losing that distinction for re-serialisation).
type Time struct {
	Year, Month, Day    int
	Hour, Minute, Second int
	// QuarterHours is the signed timezone offset in units of 15 minutes,
	// exactly as transmitted on the wire.
	QuarterHours int
}

// UTC returns t converted to a time.Time, applying the quarter-hour offset.
func (t Time) UTC() time.Time {
	loc := time.FixedZone("", t.QuarterHours*15*60)
	return time.Date(2000+t.Year, time.Month(t.Month), t.Day, t.Hour, t.Minute, t.Second, 0, loc).UTC()
}

// Clock issues +CCLK? and parses the response.
type Clock struct {
	at      *at.AT
	timeout time.Duration
}

// Option configures a Clock on construction.
type Option func(*Clock)

// WithTimeout overrides the default command timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Clock) { c.timeout = d }
}

// New creates a Clock driving +CCLK? over a.
func New(a *at.AT, opts ...Option) *Clock {
	c := &Clock{at: a, timeout: 10 * time.Second}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Read queries the modem's current RTC value.
func (c *Clock) Read(ctx context.Context) (Time, error) {
	i, err := c.at.Command(ctx, "+CCLK?", c.timeout)
	if err != nil {
		return Time{}, err
	}
	for _, l := range i {
		if info.HasPrefix(l, "+CCLK") {
			r := at.NewArgReader(info.TrimPrefix(l, "+CCLK"))
			s, err := r.String()
			if err != nil {
				return Time{}, ErrReadFailed
			}
			t, ok := parseCCLK(s)
			if !ok {
				return Time{}, ErrReadFailed
			}
			return t, nil
		}
	}
	return Time{}, ErrReadFailed
}

// parseCCLK parses the 20-byte "yy/MM/dd,hh:mm:ss+zz" (or "-zz") payload,
// where zz is signed quarter-hours.
func parseCCLK(s string) (Time, bool) {
	datePart, rest, ok := strings.Cut(s, ",")
	if !ok {
		return Time{}, false
	}
	dateFields := strings.Split(datePart, "/")
	if len(dateFields) != 3 {
		return Time{}, false
	}
	sign := 1
	signIdx := strings.IndexAny(rest, "+-")
	if signIdx < 0 {
		return Time{}, false
	}
	if rest[signIdx] == '-' {
		sign = -1
	}
	timeFields := strings.Split(rest[:signIdx], ":")
	if len(timeFields) != 3 {
		return Time{}, false
	}
	zz, err := strconv.Atoi(rest[signIdx+1:])
	if err != nil {
		return Time{}, false
	}
	ints := make([]int, 0, 6)
	for _, f := range append(append([]string{}, dateFields...), timeFields...) {
		n, err := strconv.Atoi(f)
		if err != nil {
			return Time{}, false
		}
		ints = append(ints, n)
	}
	return Time{
		Year: ints[0], Month: ints[1], Day: ints[2],
		Hour: ints[3], Minute: ints[4], Second: ints[5],
		QuarterHours: sign * zz,
	}, true
}

// ErrReadFailed indicates the RTC response was missing or malformed.
var ErrReadFailed = errString("rtc read failed")

type errString string

func (e errString) Error() string { return string(e) }
