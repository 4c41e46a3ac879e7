// Package dns implements hostname resolution via +QIDNSGIP, including the
// multi-line "dnsgip" URC sequence the modem uses to report one or more
// resolved addresses.
package dns

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/quectel/qmodem/at"
	"github.com/quectel/qmodem/info"
)

const readyTimeout = 15 * time.Second

// Resolver drives +QIDNSGIP and the DNS scratch state filled by
// urc.Dispatcher. Only one resolve may be in flight at a time (the
// dns-mutex serialises callers, matching the modem's own single-shot DNS
// scratch register).
type Resolver struct {
	at      *at.AT
	timeout time.Duration

	dnsMu sync.Mutex // serialises concurrent Resolve calls end to end

	mu       sync.Mutex
	expected int
	got      []string
	ready    chan struct{}
}

// Option configures a Resolver on construction.
type Option func(*Resolver)

// WithTimeout overrides the default command timeout for issuing +QIDNSGIP.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) { r.timeout = d }
}

// New creates a Resolver driving resolution over a.
func New(a *at.AT, opts ...Option) *Resolver {
	r := &Resolver{at: a, timeout: 10 * time.Second}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve looks up host on PSD profile and returns the first IP address the
// modem reports, waiting up to 15 s for the "dnsgip" URC sequence to
// complete.
func (r *Resolver) Resolve(ctx context.Context, profile int, host string) (string, error) {
	r.dnsMu.Lock()
	defer r.dnsMu.Unlock()

	r.mu.Lock()
	r.expected = -1
	r.got = nil
	ready := make(chan struct{})
	r.ready = ready
	r.mu.Unlock()

	cmd := "+QIDNSGIP=" + strconv.Itoa(profile) + `,"` + host + `"`
	if _, err := r.at.Command(ctx, cmd, r.timeout); err != nil {
		return "", err
	}

	timer := time.NewTimer(readyTimeout)
	defer timer.Stop()
	select {
	case <-ready:
	case <-timer.C:
		return "", ErrTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.got) == 0 {
		return "", ErrNoAddress
	}
	return r.got[0], nil
}

// HandleURC applies one line of the "+QIURC:\"dnsgip\",..." sequence, as
// routed by urc.Dispatcher. The first line carries an error code (or 0) and
// the address count; each subsequent line carries one quoted IP address.
func (r *Resolver) HandleURC(line string) {
	if !info.HasPrefix(line, "+QIURC") {
		return
	}
	body := info.TrimPrefix(line, "+QIURC")
	ra := at.NewArgReader(body)
	kind, err := ra.String()
	if err != nil || kind != "dnsgip" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ready == nil {
		return // no resolve in flight; stray URC, drop it.
	}

	if r.expected < 0 {
		errCode, err := parseIntField(ra)
		if err != nil {
			return
		}
		count, err := parseIntField(ra)
		if err != nil {
			return
		}
		if errCode != 0 || count == 0 {
			r.expected = 0
			close(r.ready)
			r.ready = nil
			return
		}
		r.expected = count
		return
	}

	ip, err := ra.String()
	if err != nil {
		return
	}
	r.got = append(r.got, ip)
	if len(r.got) >= r.expected {
		close(r.ready)
		r.ready = nil
	}
}

// parseIntField reads a field that the modem may send either as a bare
// decimal (the documented +QIURC form) or quoted (as some firmware
// revisions render the leading error code).
func parseIntField(ra *at.ArgReader) (int, error) {
	if n, err := ra.Int(); err == nil {
		return n, nil
	}
	s, err := ra.String()
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(s)
}

var (
	// ErrTimeout indicates the dnsgip URC sequence did not complete within
	// 15 seconds.
	ErrTimeout = errString("dns resolve timed out")
	// ErrNoAddress indicates the modem returned no address: the first
	// dnsgip line carried a non-zero error code or an address count of zero.
	ErrNoAddress = errString("no address returned")
)

type errString string

func (e errString) Error() string { return string(e) }
