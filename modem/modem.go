// Package modem composes the AT multiplexer and every subsystem package
// into one BSD-style host facade: socket lifecycle, DNS resolution, SMS,
// RTC, GNSS, and the small query-only operations (attach, operators, RSSI,
// mobile/link info) that don't warrant their own package.
package modem

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/quectel/qmodem/at"
	"github.com/quectel/qmodem/dns"
	"github.com/quectel/qmodem/gnss"
	"github.com/quectel/qmodem/info"
	"github.com/quectel/qmodem/netinfo"
	"github.com/quectel/qmodem/rtc"
	"github.com/quectel/qmodem/sms"
	"github.com/quectel/qmodem/socket"
	"github.com/quectel/qmodem/urc"
)

// Modem is the assembled driver: one AT multiplexer plus every subsystem
// layered on top of it.
type Modem struct {
	AT   *at.AT
	Net  *netinfo.Registry
	DNS  *dns.Resolver
	SMS  *sms.Store
	RTC  *rtc.Clock
	GNSS *gnss.Receiver
	Sock *socket.Table
	URC  *urc.Dispatcher

	timeout time.Duration
}

// Option configures a Modem on construction.
type Option func(*Modem)

// WithTimeout overrides the default command timeout used by the facade's
// own one-off query methods (Attach, RSSI, MobileInfo, LinkInfo).
// Operators and SetOperator always use a 3-minute timeout. Subsystem
// packages keep their own independently configurable timeouts.
func WithTimeout(d time.Duration) Option {
	return func(m *Modem) { m.timeout = d }
}

// New assembles a Modem over an already-initialised at.AT (the caller is
// expected to have called a.Init first) and starts the URC dispatcher.
func New(ctx context.Context, a *at.AT, opts ...Option) (*Modem, error) {
	m := &Modem{AT: a, timeout: 10 * time.Second}
	m.Net = netinfo.New(a)
	m.DNS = dns.New(a)
	m.SMS = sms.New(a)
	m.RTC = rtc.New(a)
	m.GNSS = gnss.New(a)
	m.Sock = socket.NewTable(a, m.Net)
	for _, opt := range opts {
		opt(m)
	}
	if err := m.SMS.Init(ctx); err != nil {
		return nil, err
	}
	m.URC = urc.New(a, m.Sock, m.Net, m.DNS)
	if err := m.URC.Start(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

// Close stops the URC dispatcher. The underlying transport is the caller's
// to close.
func (m *Modem) Close() {
	m.URC.Stop()
}

// --- socket facade: thin pass-throughs to Sock, giving callers one
// BSD-shaped surface instead of needing to reach into m.Sock themselves. ---

func (m *Modem) NewSocket(ctx context.Context, proto socket.Protocol, secure bool) (int, error) {
	return m.Sock.New(ctx, proto, secure)
}

func (m *Modem) Connect(ctx context.Context, id int, host string, port int) error {
	return m.Sock.Connect(ctx, id, host, port)
}

func (m *Modem) Bind(ctx context.Context, id, port int) error {
	return m.Sock.Bind(ctx, id, port)
}

func (m *Modem) Send(ctx context.Context, id int, data []byte) (int, error) {
	return m.Sock.Send(ctx, id, data)
}

func (m *Modem) SendTo(ctx context.Context, id int, data []byte, host string, port int) (int, error) {
	return m.Sock.SendTo(ctx, id, data, host, port)
}

func (m *Modem) Recv(ctx context.Context, id int, buf []byte) (int, error) {
	return m.Sock.Recv(ctx, id, buf)
}

func (m *Modem) RecvFrom(ctx context.Context, id int, buf []byte) (int, string, int, error) {
	return m.Sock.RecvFrom(ctx, id, buf)
}

func (m *Modem) CloseSocket(ctx context.Context, id int) error {
	return m.Sock.Close(ctx, id)
}

func (m *Modem) CloseAllSockets(ctx context.Context) error {
	return m.Sock.CloseAll(ctx)
}

func (m *Modem) Select(ctx context.Context, ids []int, timeout time.Duration) ([]int, error) {
	return m.Sock.Select(ctx, ids, timeout)
}

func (m *Modem) ConfigureTLS(ctx context.Context, id int, cfg socket.TLSConfig) error {
	return m.Sock.ConfigureTLS(ctx, id, cfg)
}

// --- DNS / SMS / RTC / GNSS facades ---

func (m *Modem) Resolve(ctx context.Context, profile int, host string) (string, error) {
	return m.DNS.Resolve(ctx, profile, host)
}

func (m *Modem) SendSMS(ctx context.Context, number, message string) (string, error) {
	return m.SMS.Send(ctx, number, message)
}

func (m *Modem) ListSMS(ctx context.Context, status string, offset, max int) ([]sms.Entry, error) {
	return m.SMS.List(ctx, status, offset, max)
}

func (m *Modem) DeleteSMS(ctx context.Context, index int) error {
	return m.SMS.Delete(ctx, index)
}

func (m *Modem) GetSCA(ctx context.Context) (string, error) {
	return m.SMS.GetSCA(ctx)
}

func (m *Modem) SetSCA(ctx context.Context, sca string) error {
	return m.SMS.SetSCA(ctx, sca)
}

func (m *Modem) ReadRTC(ctx context.Context) (rtc.Time, error) {
	return m.RTC.Read(ctx)
}

func (m *Modem) InitGNSS(ctx context.Context, rate int, useUART3 bool) error {
	return m.GNSS.Start(ctx, rate, useUART3)
}

func (m *Modem) StopGNSS(ctx context.Context) error {
	return m.GNSS.Stop(ctx)
}

func (m *Modem) Fix(ctx context.Context) (gnss.Fix, error) {
	return m.GNSS.Fix(ctx)
}

// --- network attach / operator selection / signal / device info ---

// Attach brings up (or tears down) the GPRS/EPS attach state via +CGATT,
// independent of any particular PDP context.
func (m *Modem) Attach(ctx context.Context, attach bool) error {
	v := "0"
	if attach {
		v = "1"
	}
	_, err := m.AT.Command(ctx, "+CGATT="+v, m.timeout)
	return err
}

// Detach tears down the GPRS/EPS attach state via +CGATT=0.
func (m *Modem) Detach(ctx context.Context) error {
	return m.Attach(ctx, false)
}

// PendingSMS lists messages still marked unread in storage, the set a
// caller would want to drain after an OnIncomingSMS notification storm.
func (m *Modem) PendingSMS(ctx context.Context) ([]sms.Entry, error) {
	return m.SMS.List(ctx, "REC UNREAD", 0, 0)
}

// Operator is one entry of a +COPS=? network scan.
type Operator struct {
	Stat int
	Long string
	Numeric string
	AcT int
}

// Operators issues +COPS=? and parses the operator list it returns.
func (m *Modem) Operators(ctx context.Context) ([]Operator, error) {
	i, err := m.AT.Command(ctx, "+COPS=?", 3*time.Minute)
	if err != nil {
		return nil, err
	}
	for _, l := range i {
		if info.HasPrefix(l, "+COPS") {
			return parseOperators(info.TrimPrefix(l, "+COPS")), nil
		}
	}
	return nil, nil
}

// parseOperators parses +COPS=?'s nested-tuple operator list:
// (stat,"long","short","numeric"[,AcT]),(stat,...),...,(modes),(formats)
// Trailing mode/format tuples are single-digit groups and are skipped.
func parseOperators(body string) []Operator {
	var ops []Operator
	for _, group := range splitGroups(body) {
		if !strings.Contains(group, `"`) {
			continue // the trailing (modes)/(formats) tuples carry bare digits only
		}
		ra := at.NewArgReader(group)
		stat, err := ra.Int()
		if err != nil {
			continue
		}
		long, _ := ra.String()
		ra.String() // short alphanumeric form, unused
		numeric, _ := ra.String()
		act := -1
		if ra.More() {
			if a, err := ra.Int(); err == nil {
				act = a
			}
		}
		ops = append(ops, Operator{Stat: stat, Long: long, Numeric: numeric, AcT: act})
	}
	return ops
}

// splitGroups splits a comma-joined sequence of "(...)" groups into their
// inner contents.
func splitGroups(s string) []string {
	var groups []string
	depth := 0
	start := -1
	for i, c := range s {
		switch c {
		case '(':
			if depth == 0 {
				start = i + 1
			}
			depth++
		case ')':
			depth--
			if depth == 0 && start >= 0 {
				groups = append(groups, s[start:i])
				start = -1
			}
		}
	}
	return groups
}

// SetOperator selects a network operator. mode follows +COPS's own
// enumeration (0=automatic, 1=manual, 4=manual with automatic fallback);
// oper is ignored when mode is automatic.
func (m *Modem) SetOperator(ctx context.Context, mode int, oper string) error {
	cmd := "+COPS=" + strconv.Itoa(mode)
	if mode != 0 {
		cmd += `,2,"` + oper + `"`
	}
	_, err := m.AT.Command(ctx, cmd, 3*time.Minute)
	return err
}

// RSSI reads the received signal strength via +CSQ, mapped to dBm
// (0 meaning unknown, matching the modem's own 99 sentinel).
func (m *Modem) RSSI(ctx context.Context) (int, error) {
	i, err := m.AT.Command(ctx, "+CSQ", m.timeout)
	if err != nil {
		return 0, err
	}
	for _, l := range i {
		if !info.HasPrefix(l, "+CSQ") {
			continue
		}
		ra := at.NewArgReader(info.TrimPrefix(l, "+CSQ"))
		n, err := ra.Int()
		if err != nil {
			return 0, ErrMalformedResponse
		}
		if n == 99 {
			return 0, nil
		}
		return -113 + 2*n, nil
	}
	return 0, ErrMalformedResponse
}

// NetworkInfo summarises the current registration state, RAT and location
// area for display, delegating all tracking to Net.
type NetworkInfo struct {
	Registered bool
	RAT        netinfo.RAT
	LAC, CI    string
}

// NetworkInfo snapshots the current registration state.
func (m *Modem) NetworkInfo() NetworkInfo {
	lac, ci := m.Net.LocationArea()
	return NetworkInfo{Registered: m.Net.Registered(), RAT: m.Net.RAT(), LAC: lac, CI: ci}
}

// MobileInfo is the modem's static identity: IMEI and SIM ICCID.
type MobileInfo struct {
	IMEI  string
	ICCID string
}

// MobileInfo reads +GSN (IMEI) and +QCCID (ICCID).
func (m *Modem) MobileInfo(ctx context.Context) (MobileInfo, error) {
	var mi MobileInfo
	i, err := m.AT.Command(ctx, "+GSN", m.timeout)
	if err != nil {
		return mi, err
	}
	if len(i) > 0 {
		mi.IMEI = strings.TrimSpace(i[0])
	}
	i, err = m.AT.Command(ctx, "+QCCID", m.timeout)
	if err != nil {
		return mi, err
	}
	for _, l := range i {
		if info.HasPrefix(l, "+QCCID") {
			mi.ICCID = strings.TrimSpace(info.TrimPrefix(l, "+QCCID"))
		}
	}
	return mi, nil
}

// LinkInfo is the raw +QENG serving-cell engineering report, passed
// through unparsed: its per-RAT field layout (GSM/LTE/CAT-M1/NB-IoT) is
// too firmware-specific to model generically, so callers that need
// specific fields parse the form they've configured via +QCFG="servingcell".
type LinkInfo struct {
	Raw string
}

// LinkInfo issues +QENG="servingcell" and returns the raw report line.
func (m *Modem) LinkInfo(ctx context.Context) (LinkInfo, error) {
	i, err := m.AT.Command(ctx, `+QENG="servingcell"`, m.timeout)
	if err != nil {
		return LinkInfo{}, err
	}
	for _, l := range i {
		if info.HasPrefix(l, "+QENG") {
			return LinkInfo{Raw: info.TrimPrefix(l, "+QENG")}, nil
		}
	}
	return LinkInfo{}, ErrMalformedResponse
}

// ErrMalformedResponse indicates a query returned an unparsable response.
var ErrMalformedResponse = errString("modem: malformed response")

type errString string

func (e errString) Error() string { return string(e) }
