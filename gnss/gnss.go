// Package gnss drives the modem's satellite positioning subsystem:
// configuration via +QGPSCFG/+QGPS and fix retrieval via +QGPSLOC.
package gnss

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/quectel/qmodem/at"
	"github.com/quectel/qmodem/info"
)

// Fix is one GNSS position report, parsed from +QGPSLOC=2's 11
// comma-separated fields.
type Fix struct {
	Year, Month, Day     int
	Hour, Minute, Second int
	Latitude, Longitude  float64
	Altitude             float64
	Speed                float64
	// Course is course-over-ground in decimal degrees, converted from the
	// modem's deg.minutes representation.
	Course float64
	HDOP   float64
	NSat   int
	Kind   int
}

// Receiver drives GNSS start/stop/fix requests over an at.AT.
type Receiver struct {
	at      *at.AT
	timeout time.Duration
	running bool
}

// Option configures a Receiver on construction.
type Option func(*Receiver)

// WithTimeout overrides the default command timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Receiver) { r.timeout = d }
}

// New creates a Receiver driving GNSS commands over a.
func New(a *at.AT, opts ...Option) *Receiver {
	r := &Receiver{at: a, timeout: 10 * time.Second}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start configures and enables the GNSS engine at the given fix rate (in
// seconds), optionally routing NMEA sentences to UART3 instead of the
// modem's usual NMEA port.
func (r *Receiver) Start(ctx context.Context, rate int, useUART3 bool) error {
	nmeasrc := 0
	if useUART3 {
		nmeasrc = 1
	}
	cmds := []string{
		"+QGPSCFG=\"nmeasrc\"," + strconv.Itoa(nmeasrc),
		`+QGPSCFG="gnssconfig",1`,
		"+QGPS=1,30,50,0," + strconv.Itoa(rate),
	}
	if useUART3 {
		cmds = append(cmds, `+QGPSCFG="outport","uartnmea"`)
	}
	for _, cmd := range cmds {
		if _, err := r.at.Command(ctx, cmd, r.timeout); err != nil {
			return err
		}
	}
	r.running = true
	return nil
}

// Stop disables the GNSS engine.
func (r *Receiver) Stop(ctx context.Context) error {
	_, err := r.at.Command(ctx, "+QGPSEND", r.timeout)
	r.running = false
	return err
}

// Fix retrieves the current position, failing with ErrNotRunning if Start
// has not been called.
func (r *Receiver) Fix(ctx context.Context) (Fix, error) {
	if !r.running {
		return Fix{}, ErrNotRunning
	}
	i, err := r.at.Command(ctx, "+QGPSLOC=2", r.timeout)
	if err != nil {
		return Fix{}, err
	}
	for _, l := range i {
		if info.HasPrefix(l, "+QGPSLOC") {
			return parseFix(info.TrimPrefix(l, "+QGPSLOC"))
		}
	}
	return Fix{}, ErrMalformedResponse
}

// parseFix parses the 11-field +QGPSLOC=2 body:
// hhmmss.s,lat,lon,hdop,alt,fix,cog,spkm,spkn,date,nsat
func parseFix(body string) (Fix, error) {
	fields := strings.Split(body, ",")
	if len(fields) < 11 {
		return Fix{}, ErrMalformedResponse
	}
	hhmmss := fields[0]
	if len(hhmmss) < 6 {
		return Fix{}, ErrMalformedResponse
	}
	hh, err1 := strconv.Atoi(hhmmss[0:2])
	mm, err2 := strconv.Atoi(hhmmss[2:4])
	ss, err3 := strconv.Atoi(hhmmss[4:6])
	lat, err4 := strconv.ParseFloat(fields[1], 64)
	lon, err5 := strconv.ParseFloat(fields[2], 64)
	hdop, err6 := strconv.ParseFloat(fields[3], 64)
	alt, err7 := strconv.ParseFloat(fields[4], 64)
	kind, err8 := strconv.Atoi(fields[5])
	cog, err9 := strconv.ParseFloat(fields[6], 64)
	spkm, err10 := strconv.ParseFloat(fields[7], 64)
	date := fields[9]
	nsat, err11 := strconv.Atoi(fields[10])
	for _, err := range []error{err1, err2, err3, err4, err5, err6, err7, err8, err9, err10, err11} {
		if err != nil {
			return Fix{}, ErrMalformedResponse
		}
	}
	if len(date) < 6 {
		return Fix{}, ErrMalformedResponse
	}
	dd, errA := strconv.Atoi(date[0:2])
	mo, errB := strconv.Atoi(date[2:4])
	yy, errC := strconv.Atoi(date[4:6])
	if errA != nil || errB != nil || errC != nil {
		return Fix{}, ErrMalformedResponse
	}
	return Fix{
		Year: yy, Month: mo, Day: dd,
		Hour: hh, Minute: mm, Second: ss,
		Latitude: lat, Longitude: lon,
		Altitude: alt,
		Speed:    spkm,
		Course:   degMinutesToDecimal(cog),
		HDOP:     hdop,
		NSat:     nsat,
		Kind:     kind,
	}, nil
}

// degMinutesToDecimal converts the modem's course-over-ground, reported as
// deg.minutes, to decimal degrees: cog_dec = int(cog) + frac(cog) * 10/6.
func degMinutesToDecimal(cog float64) float64 {
	intPart := float64(int(cog))
	frac := cog - intPart
	return intPart + frac*10/6
}

var (
	// ErrNotRunning indicates Fix was called before Start.
	ErrNotRunning = errString("gnss not running")
	// ErrMalformedResponse indicates +QGPSLOC returned an unparsable body.
	ErrMalformedResponse = errString("gnss returned malformed response")
)

type errString string

func (e errString) Error() string { return string(e) }
