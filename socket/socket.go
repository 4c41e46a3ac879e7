// Package socket implements the BSD-style socket table layered on the AT
// command slot arbiter: per-socket receive buffering, asynchronous
// open/close via URCs, send/recv/sendto/recvfrom, and TLS credential
// provisioning.
package socket

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quectel/qmodem/at"
	"github.com/quectel/qmodem/info"
	"github.com/quectel/qmodem/internal/ring"
	"github.com/quectel/qmodem/netinfo"
)

// Protocol is the transport protocol of a socket, matching the AF_INET
// protocol numbers the modem itself reports.
type Protocol int

const (
	TCP Protocol = 6
	UDP Protocol = 17
)

func (p Protocol) String() string {
	if p == UDP {
		return "UDP"
	}
	return "TCP"
}

type connState int32

const (
	stateIdle connState = iota
	stateConnected
	stateFailed
)

const (
	// MaxSockets is the size of the socket table, matching the modem's own
	// fixed allocation.
	MaxSockets = 6

	ringCapacity = 256

	openTimeout          = 150 * time.Second
	recvTimeout          = 30 * time.Second
	unackedDeadThreshold = 1500
	unregisteredRefusal  = 60 * time.Second
	maxRxPeekLen         = 1500
	pdpContextID         = 1
)

// socket is one entry in the Table, identified by its index (which equals
// the modem's own connectID).
type socket struct {
	id       int
	mu       sync.Mutex
	acquired bool
	proto    Protocol
	secure   bool
	bound    bool
	state    int32 // connState, accessed atomically
	toClose  int32 // bool, accessed atomically

	ring *ring.Buffer
	rx   chan struct{} // buffered(1) semaphore: new data or a closing event

	// lastPeerHost/lastPeerPort are the remote address reported by the most
	// recent UDP +QIRD read, surfaced by RecvFrom. Unused for TCP.
	lastPeerHost string
	lastPeerPort int

	openMu   sync.Mutex
	openDone chan struct{} // closed once an open URC is observed for this attempt
}

func newSocket(id int) *socket {
	return &socket{id: id, ring: ring.New(ringCapacity), rx: make(chan struct{}, 1)}
}

func (s *socket) signalRx() {
	select {
	case s.rx <- struct{}{}:
	default:
	}
}

func (s *socket) markToClose() {
	atomic.StoreInt32(&s.toClose, 1)
	s.signalRx()
}

func (s *socket) isToClose() bool {
	return atomic.LoadInt32(&s.toClose) != 0
}

func (s *socket) setState(st connState) {
	atomic.StoreInt32(&s.state, int32(st))
}

func (s *socket) getState() connState {
	return connState(atomic.LoadInt32(&s.state))
}

// Table is the fixed-size socket table. One Table serves one modem.
type Table struct {
	at      *at.AT
	net     *netinfo.Registry
	timeout time.Duration

	mu      sync.Mutex
	sockets [MaxSockets]*socket

	readyMu sync.Mutex
	ready   chan struct{} // closed and replaced whenever any socket's readiness may have changed
}

// Option configures a Table on construction.
type Option func(*Table)

// WithTimeout overrides the default command timeout for non-open/close
// operations.
func WithTimeout(d time.Duration) Option {
	return func(t *Table) { t.timeout = d }
}

// NewTable creates a socket Table driving commands over a. reg supplies the
// network-registration predicate used to refuse new sockets and sends while
// the modem has been unregistered too long.
func NewTable(a *at.AT, reg *netinfo.Registry, opts ...Option) *Table {
	t := &Table{at: a, net: reg, timeout: 10 * time.Second, ready: make(chan struct{})}
	for i := range t.sockets {
		t.sockets[i] = newSocket(i)
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// broadcastReady wakes every Select call blocked on the table: a socket's
// readiness may have changed.
func (t *Table) broadcastReady() {
	t.readyMu.Lock()
	close(t.ready)
	t.ready = make(chan struct{})
	t.readyMu.Unlock()
}

func (t *Table) readyChan() <-chan struct{} {
	t.readyMu.Lock()
	defer t.readyMu.Unlock()
	return t.ready
}

// Readable reports whether id has data ready to Recv without blocking, or
// has been closed (in which case Recv would return ErrClosed immediately).
func (t *Table) Readable(ctx context.Context, id int) (bool, error) {
	s, err := t.get(id)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	has := s.ring.Len() > 0
	s.mu.Unlock()
	if has {
		return true, nil
	}
	if s.isToClose() {
		return true, nil
	}
	avail, err := t.available(ctx, s)
	if err != nil {
		return false, err
	}
	return avail > 0, nil
}

// Select blocks until at least one socket in ids is readable, ids is empty
// and timeout is the only wait condition satisfied, or timeout/ctx expire
// first. A zero timeout waits indefinitely (subject to ctx).
func (t *Table) Select(ctx context.Context, ids []int, timeout time.Duration) ([]int, error) {
	var timer *time.Timer
	var timerC <-chan time.Time
	if timeout > 0 {
		timer = time.NewTimer(timeout)
		defer timer.Stop()
		timerC = timer.C
	}
	for {
		var readyIDs []int
		for _, id := range ids {
			ok, err := t.Readable(ctx, id)
			if err != nil {
				return nil, err
			}
			if ok {
				readyIDs = append(readyIDs, id)
			}
		}
		if len(readyIDs) > 0 {
			return readyIDs, nil
		}
		wake := t.readyChan()
		select {
		case <-wake:
		case <-timerC:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (t *Table) get(id int) (*socket, error) {
	if id < 0 || id >= MaxSockets {
		return nil, ErrUnsupported
	}
	return t.sockets[id], nil
}

// New acquires an unused socket slot for proto/secure, refusing if the
// modem has been unregistered for too long. If the slot was left
// to-be-closed by a prior user, it is explicitly closed first to
// re-synchronise with the modem.
func (t *Table) New(ctx context.Context, proto Protocol, secure bool) (int, error) {
	if proto != TCP && proto != UDP {
		return 0, ErrUnsupported
	}
	if t.net != nil && t.net.UnregisteredDuration() >= unregisteredRefusal {
		return 0, ErrNetworkUnavailable
	}

	t.mu.Lock()
	var s *socket
	for _, cand := range t.sockets {
		cand.mu.Lock()
		if !cand.acquired {
			s = cand
			cand.mu.Unlock()
			break
		}
		cand.mu.Unlock()
	}
	if s == nil {
		t.mu.Unlock()
		return 0, ErrNoFreeSocket
	}
	s.mu.Lock()
	s.acquired = true
	t.mu.Unlock()
	needsResync := s.isToClose()
	s.proto = proto
	s.secure = secure
	s.bound = false
	s.setState(stateIdle)
	atomic.StoreInt32(&s.toClose, 0)
	s.ring.Reset()
	s.mu.Unlock()

	if needsResync {
		t.closeOnModem(ctx, s)
	}
	return s.id, nil
}

// Connect opens a TCP or UDP connection to host:port on socket id, blocking
// until the asynchronous +QIOPEN/+QSSLOPEN URC reports the result or the
// 150-second open window expires.
func (t *Table) Connect(ctx context.Context, id int, host string, port int) error {
	s, err := t.get(id)
	if err != nil {
		return err
	}
	done := s.beginOpen()
	cmd := t.openCommand(s, fmt.Sprintf(`"%s"`, host), port, 0)
	if _, err := t.at.Command(ctx, cmd, t.timeout); err != nil {
		s.endOpen()
		return err
	}
	return t.awaitOpen(ctx, s, done)
}

// Bind opens a UDP "service" socket bound to 127.0.0.1:port, using the same
// asynchronous open protocol as Connect.
func (t *Table) Bind(ctx context.Context, id int, port int) error {
	s, err := t.get(id)
	if err != nil {
		return err
	}
	if s.proto != UDP {
		return ErrUnsupported
	}
	done := s.beginOpen()
	cmd := fmt.Sprintf(`+QIOPEN=%d,%d,"UDP SERVICE","127.0.0.1",0,%d,0`, pdpContextID, s.id, port)
	if _, err := t.at.Command(ctx, cmd, t.timeout); err != nil {
		s.endOpen()
		return err
	}
	if err := t.awaitOpen(ctx, s, done); err != nil {
		return err
	}
	s.mu.Lock()
	s.bound = true
	s.mu.Unlock()
	return nil
}

func (t *Table) openCommand(s *socket, quotedHost string, port, localPort int) string {
	proto := s.proto.String()
	if s.secure {
		return fmt.Sprintf(`+QSSLOPEN=%d,%d,%d,%s,%d,0`, pdpContextID, s.id, s.id, quotedHost, port)
	}
	return fmt.Sprintf(`+QIOPEN=%d,%d,"%s",%s,%d,%d,0`, pdpContextID, s.id, proto, quotedHost, port, localPort)
}

func (s *socket) beginOpen() chan struct{} {
	s.openMu.Lock()
	defer s.openMu.Unlock()
	s.openDone = make(chan struct{})
	return s.openDone
}

func (s *socket) endOpen() {
	s.openMu.Lock()
	defer s.openMu.Unlock()
	if s.openDone != nil {
		close(s.openDone)
		s.openDone = nil
	}
}

func (t *Table) awaitOpen(ctx context.Context, s *socket, done chan struct{}) error {
	timer := time.NewTimer(openTimeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		t.closeOnModem(ctx, s)
		return ErrTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
	if s.getState() != stateConnected {
		t.closeOnModem(ctx, s)
		return ErrConnectionRefused
	}
	return nil
}

// HandleOpenURC applies a "+QIOPEN: id,status" or "+QSSLOPEN: id,status"
// line, as routed by urc.Dispatcher.
func (t *Table) HandleOpenURC(id, status int) {
	s, err := t.get(id)
	if err != nil {
		return
	}
	if status == 0 {
		s.setState(stateConnected)
	} else {
		s.setState(stateFailed)
	}
	s.endOpen()
}

// HandleClosedURC applies a `+QIURC:"closed",<id>` line: the socket is
// marked to-be-closed and its waiters woken.
func (t *Table) HandleClosedURC(id int) {
	s, err := t.get(id)
	if err != nil {
		return
	}
	s.markToClose()
	t.broadcastReady()
}

// HandleRecvURC applies a `+QIURC:"recv",<id>` line by waking any blocked
// receiver.
func (t *Table) HandleRecvURC(id int) {
	s, err := t.get(id)
	if err != nil {
		return
	}
	s.signalRx()
	t.broadcastReady()
}

// HandlePDPDeact marks every acquired socket to-be-closed without issuing
// any AT command, mirroring a `+QIURC:"pdpdeact"` or CGEV detach/deact URC:
// the modem has already torn the sockets down remotely.
func (t *Table) HandlePDPDeact() {
	for _, s := range t.sockets {
		s.mu.Lock()
		acquired := s.acquired
		s.mu.Unlock()
		if acquired {
			s.markToClose()
		}
	}
	t.broadcastReady()
}

// Send writes data to a connected TCP socket, returning 0 (not an error) if
// the modem reports its send buffer is full ("SEND FAIL"), allowing the
// caller to retry.
func (t *Table) Send(ctx context.Context, id int, data []byte) (int, error) {
	return t.send(ctx, id, data, "")
}

// SendTo writes data as one UDP datagram to host:port.
func (t *Table) SendTo(ctx context.Context, id int, data []byte, host string, port int) (int, error) {
	return t.send(ctx, id, data, fmt.Sprintf(`,"%s",%d`, host, port))
}

func (t *Table) send(ctx context.Context, id int, data []byte, addrSuffix string) (int, error) {
	s, err := t.get(id)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isToClose() {
		return 0, ErrClosed
	}
	if t.net != nil && t.net.UnregisteredDuration() >= unregisteredRefusal {
		return 0, ErrNetworkUnavailable
	}
	sendCmd := "+QISEND"
	if s.secure {
		sendCmd = "+QSSLSEND"
	}
	cmd := fmt.Sprintf("%s=%d,%d%s", sendCmd, id, len(data), addrSuffix)
	lines, err := t.at.PromptCommand(ctx, cmd, data, nil, t.timeout)
	if err != nil {
		s.markToClose()
		return -1, err
	}
	for _, l := range lines {
		if len(l) >= 9 && l[:9] == "SEND FAIL" {
			return 0, nil
		}
	}
	return len(data), nil
}

// Recv reads up to len(buf) bytes from a connected TCP socket, draining the
// receive ring buffer first and otherwise querying the modem for newly
// available data. It returns (0, nil) if no data is currently available so
// the caller can wait on it, and ErrClosed once the socket's ring is empty
// and it has been marked to-be-closed.
func (t *Table) Recv(ctx context.Context, id int, buf []byte) (int, error) {
	n, _, _, err := t.recv(ctx, id, buf)
	return n, err
}

// RecvFrom behaves like Recv but for UDP sockets; each receive is atomic
// per datagram, so any data beyond len(buf) is discarded rather than kept
// for the next call. The returned host/port is the remote peer the modem
// reported the datagram came from, parsed from the triggering +QIRD line.
func (t *Table) RecvFrom(ctx context.Context, id int, buf []byte) (int, string, int, error) {
	s, err := t.get(id)
	if err != nil {
		return 0, "", 0, err
	}
	n, host, port, err := t.recv(ctx, id, buf)
	s.ring.Reset()
	return n, host, port, err
}

func (t *Table) recv(ctx context.Context, id int, buf []byte) (int, string, int, error) {
	s, err := t.get(id)
	if err != nil {
		return 0, "", 0, err
	}
	s.mu.Lock()
	if n := s.ring.Read(buf); n > 0 {
		host, port := s.lastPeerHost, s.lastPeerPort
		s.mu.Unlock()
		return n, host, port, nil
	}
	s.mu.Unlock()

	avail, err := t.available(ctx, s)
	if err != nil {
		return 0, "", 0, err
	}
	if avail == 0 {
		if s.isToClose() {
			return 0, "", 0, ErrClosed
		}
		return 0, "", 0, nil
	}

	// available already peeked secure sockets' data straight into the ring
	// buffer (secure sockets have no zero-length query form); non-secure
	// sockets still need the actual transfer.
	var n int
	var host string
	var port int
	if s.secure {
		s.mu.Lock()
		n = s.ring.Read(buf)
		host, port = s.lastPeerHost, s.lastPeerPort
		s.mu.Unlock()
	} else {
		n, host, port, err = t.readFromModem(ctx, s, buf, avail)
		if err != nil {
			s.markToClose()
			return 0, "", 0, err
		}
	}
	if s.ring.Len() > 0 {
		s.signalRx()
	}
	return n, host, port, nil
}

// WaitForData blocks until the socket's rx semaphore fires or recvTimeout
// elapses, running the keepalive probe and the unregistered-too-long check
// on timeout, matching the reference driver's recv-blocking contract.
func (t *Table) WaitForData(ctx context.Context, id int) error {
	s, err := t.get(id)
	if err != nil {
		return err
	}
	timer := time.NewTimer(recvTimeout)
	defer timer.Stop()
	select {
	case <-s.rx:
		return nil
	case <-timer.C:
		t.keepalive(ctx, s)
		if t.net != nil && t.net.UnregisteredDuration() >= unregisteredRefusal {
			s.markToClose()
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Table) keepalive(ctx context.Context, s *socket) {
	if s.secure {
		return // Open Question: secure sockets cannot be probed; assumed alive.
	}
	if s.proto != TCP {
		return
	}
	i, err := t.at.Command(ctx, fmt.Sprintf("+QISEND=%d,0", s.id), t.timeout)
	if err != nil {
		return
	}
	for _, l := range i {
		if !info.HasPrefix(l, "+QISEND") {
			continue
		}
		r := at.NewArgReader(info.TrimPrefix(l, "+QISEND"))
		r.Int() // total
		r.Int() // acked
		unacked, err := r.Int()
		if err == nil && unacked > unackedDeadThreshold {
			s.markToClose()
		}
	}
}

// available reports bytes ready to be read without blocking: for
// non-secure TCP/UDP, a zero-length +QIRD query; for secure sockets, a
// peek-sized +QSSLRECV whose bytes land directly in the ring buffer (secure
// sockets have no zero-length query form).
func (t *Table) available(ctx context.Context, s *socket) (int, error) {
	if !s.secure {
		readCmd := "+QIRD"
		i, err := t.at.Command(ctx, fmt.Sprintf("%s=%d,0", readCmd, s.id), t.timeout)
		if err != nil {
			return 0, err
		}
		for _, l := range i {
			if !info.HasPrefix(l, readCmd) {
				continue
			}
			r := at.NewArgReader(info.TrimPrefix(l, readCmd))
			r.Int() // total_received
			r.Int() // already_read
			return r.Int()
		}
		return 0, nil
	}

	n, _, _, err := t.readFromModem(ctx, s, nil, maxRxPeekLen)
	if err != nil {
		return 0, err
	}
	_ = n
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ring.Len(), nil
}

// readFromModem issues +QIRD/+QSSLRECV for up to want bytes, handing the
// BUFFER-mode transfer a session that copies min(len(dst), advertised) into
// dst and the remainder into the socket's ring buffer. want is first capped
// at len(dst) plus the ring's free space, so every byte the modem hands over
// has somewhere to go. For a UDP socket, the trigger line also carries the
// remote peer's address, which is stashed on the socket for RecvFrom to
// report.
func (t *Table) readFromModem(ctx context.Context, s *socket, dst []byte, want int) (int, string, int, error) {
	s.mu.Lock()
	free := s.ring.Free()
	s.mu.Unlock()
	if limit := len(dst) + free; want > limit {
		want = limit
	}
	if want <= 0 {
		return 0, "", 0, nil
	}
	readCmd := "+QIRD"
	if s.secure {
		readCmd = "+QSSLRECV"
	}
	cmd := fmt.Sprintf("%s=%d,%d", readCmd, s.id, want)
	var copied int
	var host string
	var port int
	_, err := t.at.BufferCommand(ctx, cmd, t.timeout, func(ctx context.Context, sess *at.BufferSession) error {
		advertised, h, p, ok := parseAdvertised(sess.TriggerLine, readCmd, s.proto == UDP)
		if !ok {
			return ErrMalformedResponse
		}
		host, port = h, p
		remaining := advertised
		if len(dst) > 0 && remaining > 0 {
			n, err := readUpTo(sess, dst, remaining)
			if err != nil {
				return err
			}
			copied += n
			remaining -= n
		}
		for remaining > 0 {
			chunk := remaining
			if chunk > 64 {
				chunk = 64
			}
			tmp := make([]byte, chunk)
			n, err := readUpTo(sess, tmp, chunk)
			if err != nil {
				return err
			}
			s.mu.Lock()
			s.ring.Write(tmp[:n])
			s.mu.Unlock()
			remaining -= n
		}
		return nil
	})
	if err != nil {
		return 0, "", 0, err
	}
	if host != "" {
		s.mu.Lock()
		s.lastPeerHost, s.lastPeerPort = host, port
		s.mu.Unlock()
	}
	return copied, host, port, nil
}

func readUpTo(r *at.BufferSession, dst []byte, n int) (int, error) {
	if n > len(dst) {
		n = len(dst)
	}
	total := 0
	for total < n {
		m, err := r.Read(dst[total:n])
		total += m
		if err != nil {
			return total, err
		}
		if m == 0 {
			break
		}
	}
	return total, nil
}

// parseAdvertised extracts the byte count from a "<prefix>: <n>[,<remote_ip>,
// <remote_port>]" trigger line (+QIRD/+QSSLRECV's data-ready notification).
// The remote address fields are parsed only when udp is true (readFromModem
// sets it for every UDP socket); host is "" for TCP or when the line carries
// no address.
func parseAdvertised(line, prefix string, udp bool) (n int, host string, port int, ok bool) {
	if !info.HasPrefix(line, prefix) {
		return 0, "", 0, false
	}
	r := at.NewArgReader(info.TrimPrefix(line, prefix))
	n, err := r.Int()
	if err != nil {
		return 0, "", 0, false
	}
	if !udp || !r.More() {
		return n, "", 0, true
	}
	host, err = r.String()
	if err != nil {
		return n, "", 0, true
	}
	port, _ = r.Int()
	return n, host, port, true
}

// Close issues +QICLOSE/+QSSLCLOSE with a 10-second graceful deadline,
// unconditionally freeing the slot. It is idempotent: closing an
// unacquired or already-closing socket succeeds.
func (t *Table) Close(ctx context.Context, id int) error {
	s, err := t.get(id)
	if err != nil {
		return err
	}
	t.closeOnModem(ctx, s)
	s.mu.Lock()
	s.acquired = false
	s.mu.Unlock()
	s.signalRx()
	t.broadcastReady()
	return nil
}

// CloseAll closes every currently acquired socket, continuing past
// individual failures so one stuck socket doesn't block the rest; it
// returns the first error encountered, if any.
func (t *Table) CloseAll(ctx context.Context) error {
	var firstErr error
	for i := 0; i < MaxSockets; i++ {
		s := t.sockets[i]
		s.mu.Lock()
		acquired := s.acquired
		s.mu.Unlock()
		if !acquired {
			continue
		}
		if err := t.Close(ctx, i); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (t *Table) closeOnModem(ctx context.Context, s *socket) {
	cmd := fmt.Sprintf("+QICLOSE=%d,10", s.id)
	if s.secure {
		cmd = fmt.Sprintf("+QSSLCLOSE=%d,10", s.id)
	}
	t.at.Command(ctx, cmd, 12*time.Second)
}

// ConfigureTLS provisions TLS credentials and security parameters for a
// secure socket, per the CA/client-cert/client-key + seclevel sequence.
func (t *Table) ConfigureTLS(ctx context.Context, id int, cfg TLSConfig) error {
	s, err := t.get(id)
	if err != nil {
		return err
	}
	n := byte('0' + id)
	creds := []struct {
		name string
		data []byte
	}{
		{fmt.Sprintf("cacert%c.pem", n), cfg.CACert},
		{fmt.Sprintf("clicrt%c.pem", n), cfg.ClientCert},
		{fmt.Sprintf("prvkey%c.pem", n), cfg.ClientKey},
	}
	for _, c := range creds {
		if len(c.data) == 0 {
			continue
		}
		if err := t.uploadCredential(ctx, c.name, c.data); err != nil {
			return err
		}
	}

	cfgCmds := []string{
		fmt.Sprintf(`+QSSLCFG="sslversion",%d,3`, s.id),
		fmt.Sprintf(`+QSSLCFG="ciphersuite",%d,0XFFFF`, s.id),
	}
	if len(cfg.CACert) > 0 {
		cfgCmds = append(cfgCmds, fmt.Sprintf(`+QSSLCFG="cacert",%d,"cacert%c.pem"`, s.id, n))
	}
	if len(cfg.ClientCert) > 0 {
		cfgCmds = append(cfgCmds, fmt.Sprintf(`+QSSLCFG="clientcert",%d,"clicrt%c.pem"`, s.id, n))
	}
	if len(cfg.ClientKey) > 0 {
		cfgCmds = append(cfgCmds, fmt.Sprintf(`+QSSLCFG="clientkey",%d,"prvkey%c.pem"`, s.id, n))
	}
	cfgCmds = append(cfgCmds,
		fmt.Sprintf(`+QSSLCFG="seclevel",%d,%d`, s.id, cfg.SecLevel),
		fmt.Sprintf(`+QSSLCFG="ignorelocaltime",%d,1`, s.id),
	)
	for _, cmd := range cfgCmds {
		if _, err := t.at.Command(ctx, cmd, t.timeout); err != nil {
			return err
		}
	}
	return nil
}

func (t *Table) uploadCredential(ctx context.Context, name string, data []byte) error {
	if _, err := t.at.Command(ctx, fmt.Sprintf(`+QFDEL="%s"`, name), t.timeout); err != nil {
		return err
	}
	cmd := fmt.Sprintf(`+QFUPL="%s",%d,5,0`, name, len(data))
	_, err := t.at.BufferCommand(ctx, cmd, t.timeout, func(ctx context.Context, sess *at.BufferSession) error {
		_, err := sess.Write(data)
		return err
	})
	return err
}

// TLSConfig holds the credentials and security level for ConfigureTLS.
// SecLevel follows the modem's own enumeration: 0 = no authentication,
// 1 = server authentication (CA cert only), 2 = server+client mutual
// authentication.
type TLSConfig struct {
	CACert     []byte
	ClientCert []byte
	ClientKey  []byte
	SecLevel   int
}
