// Package netinfo tracks cellular network registration state: the
// GSM/GPRS/EPS registration enums reported by +CREG/+CGREG/+CEREG, the
// aggregate registration state used to gate socket creation, and the PSD
// (packet-switched data) session lifecycle driven by +QICSGP/+QIACT/
// +QIDEACT.
package netinfo

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/quectel/qmodem/at"
	"github.com/quectel/qmodem/info"
)

// State is a 3GPP registration state, shared by CREG/CGREG/CEREG.
type State int

const (
	StateNotRegistered State = iota
	StateHome
	StateSearching
	StateDenied
	StateUnknown
	StateRoaming
)

// ok reports whether a state counts as registered (home or roaming),
// matching spec.md's "state >= OK" aggregate-registration test.
func (s State) ok() bool { return s == StateHome || s == StateRoaming }

// RAT is the radio access technology bitmask reported alongside EPS/GPRS
// registration.
type RAT uint8

const (
	RATGSM RAT = 1 << iota
	RATGPRS
	RATLTE
	RATLTEM1
	RATLTENB1
)

// Registry aggregates registration state from the CREG/CGREG/CEREG family,
// updated by urc.Dispatcher and by explicit Check calls.
type Registry struct {
	at      *at.AT
	timeout time.Duration

	mu   sync.Mutex
	gsm  State
	gprs State
	eps  State
	rat  RAT
	lac  string
	ci   string

	registeredSince   time.Time
	unregisteredSince time.Time
}

// Option configures a Registry on construction.
type Option func(*Registry)

// WithTimeout overrides the default command timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Registry) { r.timeout = d }
}

// New creates a Registry driving registration queries over a.
func New(a *at.AT, opts ...Option) *Registry {
	r := &Registry{at: a, timeout: 10 * time.Second, unregisteredSince: timeNow()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// timeNow exists so tests can observe a fixed instant; production code
// always calls time.Now.
var timeNow = time.Now

// Check issues +CREG?, +CGREG? and +CEREG? in sequence, merging the result
// with any URC-driven state already held.
func (r *Registry) Check(ctx context.Context) error {
	for _, cmd := range []string{"+CREG?", "+CGREG?", "+CEREG?"} {
		i, err := r.at.Command(ctx, cmd, r.timeout)
		if err != nil {
			return err
		}
		for _, l := range i {
			r.applyLine(l)
		}
	}
	return nil
}

// HandleURC applies an unsolicited +CREG/+CGREG/+CEREG line, as routed by
// urc.Dispatcher.
func (r *Registry) HandleURC(line string) {
	r.applyLine(line)
}

func (r *Registry) applyLine(line string) {
	var family string
	switch {
	case info.HasPrefix(line, "+CREG"):
		family = "+CREG"
	case info.HasPrefix(line, "+CGREG"):
		family = "+CGREG"
	case info.HasPrefix(line, "+CEREG"):
		family = "+CEREG"
	default:
		return
	}
	body := info.TrimPrefix(line, family)
	ra := at.NewArgReader(body)
	first, err := ra.Int()
	if err != nil {
		return
	}
	// The first field is either <stat> (URC form) or <n> (the solicited
	// read's config echo); if a second int follows, the first was <n> and
	// the second is <stat>.
	stat := first
	if ra.More() {
		// Int() leaves the reader position untouched on failure, so if the
		// second field is actually the lac string, parsing falls through to
		// it unharmed.
		if s, err := ra.Int(); err == nil {
			stat = s
		}
	}
	lac, _ := ra.String()
	ci, _ := ra.String()
	var act = -1
	if ra.More() {
		if a, err := ra.Int(); err == nil {
			act = a
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	st := State(stat)
	switch family {
	case "+CREG":
		r.gsm = st
	case "+CGREG":
		r.gprs = st
		if st.ok() {
			r.rat |= RATGPRS
		}
	case "+CEREG":
		r.eps = st
		if st.ok() {
			switch act {
			case 8:
				r.rat |= RATLTEM1
			case 9:
				r.rat |= RATLTENB1
			default:
				r.rat |= RATLTE
			}
		}
	}
	if lac != "" {
		r.lac = lac
	}
	if ci != "" {
		r.ci = ci
	}
	if r.registeredLocked() {
		if r.registeredSince.IsZero() {
			r.registeredSince = timeNow()
		}
		r.unregisteredSince = time.Time{}
	} else {
		if r.unregisteredSince.IsZero() {
			r.unregisteredSince = timeNow()
		}
		r.registeredSince = time.Time{}
		r.rat = 0
		r.lac = ""
		r.ci = ""
	}
}

// registeredLocked computes the aggregate registration state in precedence
// order EPS > GPRS > none, per spec.md invariant 4. Caller must hold mu.
func (r *Registry) registeredLocked() bool {
	if r.eps.ok() {
		return true
	}
	if r.gprs.ok() {
		return true
	}
	return false
}

// Registered reports the aggregate registration state (EPS takes
// precedence over GPRS over none).
func (r *Registry) Registered() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registeredLocked()
}

// UnregisteredDuration returns how long the modem has been continuously
// unregistered, or zero if currently registered.
func (r *Registry) UnregisteredDuration() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.registeredLocked() || r.unregisteredSince.IsZero() {
		return 0
	}
	return timeNow().Sub(r.unregisteredSince)
}

// RegisteredSince returns the instant the modem last became registered, or
// the zero Time if currently unregistered.
func (r *Registry) RegisteredSince() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registeredSince
}

// RAT returns the current technology bitmask. It is zero whenever
// Registered is false. HandlePDPLoss also clears it without changing
// Registered, and it then stays zero until the next +CGREG/+CEREG line that
// reports a registered state.
func (r *Registry) RAT() RAT {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rat
}

// LocationArea returns the current LAC/CI strings, empty if unregistered.
func (r *Registry) LocationArea() (lac, ci string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lac, r.ci
}

// ConfigurePSD sets up a PDP context profile for apn/user/pwd with the
// given authentication method (0=none, 1=PAP, 2=CHAP, 3=PAP or CHAP).
func (r *Registry) ConfigurePSD(ctx context.Context, profile int, apn, user, pwd string, auth int) error {
	cmd := "+QICSGP=" + strconv.Itoa(profile) + `,1,"` + apn + `","` + user + `","` + pwd + `",` + strconv.Itoa(auth)
	_, err := r.at.Command(ctx, cmd, r.timeout)
	return err
}

// ActivatePSD brings up (or tears down) the PDP context for profile, using
// the 3-minute timeout the modem's own activation procedure needs.
func (r *Registry) ActivatePSD(ctx context.Context, profile int, activate bool) error {
	cmd := "+QIACT=" + strconv.Itoa(profile)
	if !activate {
		cmd = "+QIDEACT=" + strconv.Itoa(profile)
	}
	_, err := r.at.Command(ctx, cmd, 3*time.Minute)
	return err
}

// HandlePDPLoss applies a +QIURC:"pdpdeact" or +CGEV detach/deact URC: the
// caller (urc.Dispatcher) is responsible for also closing every socket.
func (r *Registry) HandlePDPLoss() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rat = 0
	if r.unregisteredSince.IsZero() {
		r.unregisteredSince = timeNow()
	}
	r.registeredSince = time.Time{}
}
