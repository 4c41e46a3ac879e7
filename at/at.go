// Package at provides the AT-command multiplexer at the heart of the modem
// driver: a single reader goroutine that owns the serial input, a one-deep
// command slot that serialises outgoing commands from many caller
// goroutines, a line classifier distinguishing command responses from
// unsolicited result codes (URCs), and the NORMAL/PROMPT/BUFFER mode
// transitions needed to move binary payloads in and out of an otherwise
// line-oriented protocol.
package at

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// Mode is the reader's current line-protocol state.
type Mode int32

const (
	// ModeNormal is the default line-oriented state.
	ModeNormal Mode = iota
	// ModePrompt is entered on a '>' response while a send-payload command
	// (QISEND, QSSLSEND, CMGS) is active; the caller writes its payload and
	// the reader returns to ModeNormal.
	ModePrompt
	// ModeBuffer is entered when a buffer-reading or buffer-writing command
	// hands the caller direct, binary access to the transport.
	ModeBuffer
)

// BufferSession gives a caller direct access to the transport for a binary
// payload transfer, bypassing line framing. It is only valid for the
// duration of the BufferHandler call that received it.
type BufferSession struct {
	br *bufio.Reader
	w  io.Writer
	// TriggerLine is the line that caused BUFFER mode to be entered: the
	// "+QIRD: <n>" / "+QSSLRECV: <n>" info line for a read, or the literal
	// "CONNECT" line for a QFUPL write.
	TriggerLine string
}

// Read implements io.Reader, reading raw bytes from the transport.
func (s *BufferSession) Read(p []byte) (int, error) { return s.br.Read(p) }

// Write implements io.Writer, writing raw bytes to the transport.
func (s *BufferSession) Write(p []byte) (int, error) { return s.w.Write(p) }

// BufferHandler performs a caller-driven binary transfer once the reader has
// entered BUFFER mode. The reader blocks until fn returns.
type BufferHandler func(ctx context.Context, sess *BufferSession) error

// AT represents a modem managed over an AT-command connection.
// A single reader goroutine owns all reads from modem; Command and its
// siblings may be called concurrently from any number of goroutines and
// are serialised onto a single in-flight slot. AT closes its Closed
// channel when the underlying transport returns EOF; thereafter every
// outstanding and future call returns ErrClosed.
type AT struct {
	modem io.ReadWriter
	br    *bufio.Reader

	reqCh   chan *request
	indCh   chan func()
	linesCh chan string
	ctrlCh  chan chan struct{}
	closed  chan struct{}

	inds map[string]*indication // engine-goroutine-only

	defaultTimeout time.Duration

	mode int32 // Mode, accessed atomically

	wGuard <-chan time.Time
}

// Option configures an AT on construction.
type Option func(*AT)

// WithTimeout sets the default command timeout used when a caller does not
// specify one explicitly (zero duration to Command et al).
func WithTimeout(d time.Duration) Option {
	return func(a *AT) { a.defaultTimeout = d }
}

// New creates an AT multiplexer over modem, an already-open transport
// (typically a serial port, optionally wrapped in trace.New for logging).
func New(modem io.ReadWriter, opts ...Option) *AT {
	a := &AT{
		modem:          modem,
		br:             bufio.NewReaderSize(modem, 1024),
		reqCh:          make(chan *request),
		indCh:          make(chan func()),
		linesCh:        make(chan string),
		ctrlCh:         make(chan chan struct{}),
		closed:         make(chan struct{}),
		inds:           make(map[string]*indication),
		defaultTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(a)
	}
	go a.lineReader()
	go a.run()
	return a
}

// Closed returns a channel that is closed once the modem connection has
// been observed to fail.
func (a *AT) Closed() <-chan struct{} {
	return a.closed
}

// Mode reports the reader's current line-protocol state.
func (a *AT) Mode() Mode {
	return Mode(atomic.LoadInt32(&a.mode))
}

func (a *AT) setMode(m Mode) {
	atomic.StoreInt32(&a.mode, int32(m))
}

// Init brings the modem into a known state: it escapes any outstanding SMS
// prompt, flushes the command buffer, disables echo and selects verbose
// CME error reporting. It should be called once, immediately after New.
func (a *AT) Init(ctx context.Context) error {
	a.modem.Write([]byte(string(rune(27)) + "\r\n\r\n"))
	a.startWriteGuard()
	for _, cmd := range []string{"E0", "+CMEE=2"} {
		if _, err := a.Command(ctx, cmd, 0); err != nil {
			switch err {
			case context.DeadlineExceeded, context.Canceled:
				return err
			default:
				return errors.WithMessage(err, fmt.Sprintf("AT%s returned error", cmd))
			}
		}
	}
	return nil
}

// Command issues cmd (without the leading "AT" or trailing CRLF) and
// returns the info lines returned before the final OK, or an error if the
// modem returned ERROR/+CME ERROR/+CMS ERROR, the slot timed out, or ctx
// was cancelled first. A zero timeout uses the AT's default.
func (a *AT) Command(ctx context.Context, cmd string, timeout time.Duration) ([]string, error) {
	return a.do(ctx, &request{cmd: cmd, cmdID: parseCmdID(cmd), timeout: timeout})
}

// PromptCommand issues cmd and, once the modem responds with a '>' prompt,
// writes payload in <=64-byte chunks followed by terminator (which may be
// nil). It is used for QISEND/QSSLSEND (terminator nil) and, via
// SMSCommand, for CMGS (terminator 0x1A).
func (a *AT) PromptCommand(ctx context.Context, cmd string, payload, terminator []byte, timeout time.Duration) ([]string, error) {
	return a.do(ctx, &request{
		cmd:     cmd,
		cmdID:   parseCmdID(cmd),
		timeout: timeout,
		prompt:  &promptPayload{data: payload, terminator: terminator},
	})
}

// SMSCommand issues an SMS command (e.g. `+CMGS="0821234567"`) and, once
// prompted, writes sms terminated with Ctrl-Z (0x1A).
func (a *AT) SMSCommand(ctx context.Context, cmd string, sms string, timeout time.Duration) ([]string, error) {
	return a.PromptCommand(ctx, cmd, []byte(sms), []byte{0x1A}, timeout)
}

// BufferCommand issues cmd, expected to switch the reader into BUFFER mode
// (QIRD, QSSLRECV, QFUPL), and invokes fn once it does, handing fn a
// BufferSession for direct binary I/O against the transport. The reader
// resumes line mode once fn returns.
func (a *AT) BufferCommand(ctx context.Context, cmd string, timeout time.Duration, fn BufferHandler) ([]string, error) {
	return a.do(ctx, &request{cmd: cmd, cmdID: parseCmdID(cmd), timeout: timeout, bufferFn: fn, ctx: ctx})
}

// SMSListCommand issues cmd (CMGL) and calls sink once per info line
// returned, matching CMGL's special multi-line iterator behaviour: each
// line extends the caller's own SMS array rather than being buffered here.
func (a *AT) SMSListCommand(ctx context.Context, cmd string, timeout time.Duration, sink func(line string)) ([]string, error) {
	return a.do(ctx, &request{cmd: cmd, cmdID: parseCmdID(cmd), timeout: timeout, smsSink: sink})
}

func (a *AT) do(ctx context.Context, req *request) ([]string, error) {
	if req.timeout == 0 {
		req.timeout = a.defaultTimeout
	}
	if req.ctx == nil {
		req.ctx = ctx
	}
	req.done = make(chan response, 1)
	select {
	case <-a.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	case a.reqCh <- req:
	}
	select {
	case rsp := <-req.done:
		return rsp.info, rsp.err
	case <-a.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// AddIndication registers a handler for URC lines beginning with the given
// command body (e.g. "+QIURC", "+CMTI"). Each matching line is delivered
// whole to the returned channel; the channel is closed when the AT closes
// or CancelIndication is called. Quectel URCs are single-line, so unlike
// line-block indications this delivers one line per event.
func (a *AT) AddIndication(body string) (<-chan string, error) {
	done := make(chan *indication)
	errs := make(chan error)
	select {
	case <-a.closed:
		return nil, ErrClosed
	case a.indCh <- func() {
		if _, ok := a.inds[body]; ok {
			errs <- ErrIndicationExists
			return
		}
		ind := &indication{body: body, c: make(chan string, 64)}
		a.inds[body] = ind
		done <- ind
	}:
		select {
		case ind := <-done:
			return ind.c, nil
		case err := <-errs:
			return nil, err
		}
	}
}

// CancelIndication removes any indication registered for body, closing its
// channel. It is a no-op if no such indication exists.
func (a *AT) CancelIndication(body string) {
	done := make(chan struct{})
	select {
	case <-a.closed:
		return
	case a.indCh <- func() {
		if ind, ok := a.inds[body]; ok {
			close(ind.c)
			delete(a.inds, body)
		}
		close(done)
	}:
		<-done
	}
}

// request represents one in-flight command.
type request struct {
	cmd      string
	cmdID    string
	prompt   *promptPayload
	bufferFn BufferHandler
	smsSink  func(line string)
	timeout  time.Duration
	ctx      context.Context
	done     chan response
}

type promptPayload struct {
	data       []byte
	terminator []byte
}

// response is the result of a completed request.
type response struct {
	info []string
	err  error
}

// indication is a registered URC handler.
type indication struct {
	body string
	c    chan string
}

// run is the single engine goroutine: it owns the active slot, dispatches
// incoming lines, and is the only writer of a.inds, satisfying the
// single-writer discipline required of the reader loop.
func (a *AT) run() {
	var active *request
	var buf response
	var timer *time.Timer
	var timerC <-chan time.Time

	clearTimer := func() {
		if timer != nil {
			timer.Stop()
		}
		timer = nil
		timerC = nil
	}
	finish := func(extra error) {
		if extra != nil {
			buf.err = extra
		}
		active.done <- buf
		clearTimer()
		active = nil
		buf = response{}
	}

	for {
		var reqCh chan *request
		if active == nil {
			reqCh = a.reqCh
		}
		select {
		case fn := <-a.indCh:
			fn()

		case req := <-reqCh:
			active = req
			buf = response{}
			if err := a.writeCommand(req); err != nil {
				req.done <- response{err: err}
				active = nil
				continue
			}
			if req.timeout > 0 {
				timer = time.NewTimer(req.timeout)
				timerC = timer.C
			}

		case line, ok := <-a.linesCh:
			if !ok {
				a.teardown()
				return
			}
			if a.handleLine(line, active, &buf) {
				finish(nil)
			}

		case <-timerC:
			finish(ErrTimeout)
		}
	}
}

func (a *AT) teardown() {
	close(a.closed)
	for k, ind := range a.inds {
		close(ind.c)
		delete(a.inds, k)
	}
}

// handleLine classifies one received line, updates buf/active accordingly,
// and reports whether the active request is now complete. It always sends
// exactly one value on a.ctrlCh, telling the line reader whether to pause
// for a raw binary transfer (non-nil) or keep scanning lines (nil).
func (a *AT) handleLine(line string, active *request, buf *response) bool {
	switch {
	case line == "":
		a.ctrlCh <- nil
		return false

	case line == "OK":
		a.ctrlCh <- nil
		return active != nil

	case line == "RDY":
		a.ctrlCh <- nil
		return false

	case strings.HasPrefix(line, "ERROR"),
		strings.HasPrefix(line, "+CME ERROR:"),
		strings.HasPrefix(line, "+CMS ERROR:"):
		a.ctrlCh <- nil
		if active != nil {
			buf.err = newStatusError(line)
			return true
		}
		return false

	case line == ">":
		a.ctrlCh <- nil
		if active != nil && active.prompt != nil && sendPayloadCommand(active.cmdID) {
			a.setMode(ModePrompt)
			a.writePrompt(active.prompt)
			a.setMode(ModeNormal)
		}
		return false
	}

	if desc, ok := lookupCommand(line); ok {
		matchesActive := active != nil && strings.HasPrefix(line, active.cmdID+":")
		switch {
		case matchesActive && desc.caps&capBufferRead != 0 && active.bufferFn != nil:
			return a.runBufferSession(active, buf, line)
		case matchesActive && desc.style == styleSMSList && active.smsSink != nil:
			a.ctrlCh <- nil
			active.smsSink(line)
			return false
		case matchesActive:
			a.ctrlCh <- nil
			buf.info = append(buf.info, line)
			return false
		case desc.caps&capURC != 0:
			a.ctrlCh <- nil
			a.dispatchIndication(desc.body, line)
			return false
		default:
			a.ctrlCh <- nil
			return false
		}
	}

	if active != nil && active.prompt != nil && len(line) > 0 && line[len(line)-1] == 0x1A &&
		strings.HasPrefix(line, string(active.prompt.data)) {
		// the modem echoed the SMS payload we just wrote; swallow it.
		a.ctrlCh <- nil
		return false
	}

	if line == "CONNECT" && active != nil {
		if desc, ok := lookupDescriptorByID(active.cmdID); ok && desc.caps&capBufferWrite != 0 && active.bufferFn != nil {
			return a.runBufferSession(active, buf, line)
		}
	}

	if active != nil {
		if desc, ok := lookupDescriptorByID(active.cmdID); ok &&
			(desc.style == styleRawStringOnly || desc.style == styleRawStringThenOK) &&
			looksLikeIndication(line) {
			// an unsolicited indication (e.g. "+QIND: ...") arrived while this
			// slot expects an unprefixed raw-string line; drop it rather than
			// folding it into the response.
			a.ctrlCh <- nil
			return false
		}
		a.ctrlCh <- nil
		buf.info = append(buf.info, line)
		return false
	}
	a.ctrlCh <- nil
	return false
}

// runBufferSession pauses the line reader, hands the caller's bufferFn
// direct transport access, and resumes line mode once it returns.
func (a *AT) runBufferSession(active *request, buf *response, triggerLine string) bool {
	resume := make(chan struct{})
	a.ctrlCh <- resume
	a.setMode(ModeBuffer)
	sess := &BufferSession{br: a.br, w: a.modem, TriggerLine: triggerLine}
	ctx := active.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	err := active.bufferFn(ctx, sess)
	a.setMode(ModeNormal)
	close(resume)
	if err != nil {
		buf.err = err
		return true
	}
	return false
}

func (a *AT) dispatchIndication(body, line string) {
	ind, ok := a.inds[body]
	if !ok {
		return
	}
	select {
	case ind.c <- line:
	default:
		// slow consumer; URC handlers must be constant-time, so drop
		// rather than block the reader.
	}
}

func (a *AT) writePrompt(p *promptPayload) {
	data := p.data
	for len(data) > 0 {
		n := 64
		if n > len(data) {
			n = len(data)
		}
		a.modem.Write(data[:n])
		data = data[n:]
	}
	if len(p.terminator) > 0 {
		a.modem.Write(p.terminator)
	}
}

// writeCommand writes the command line to the modem. Prompt-driven
// commands (SMS, QISEND) are written with a trailing CR only, since the
// modem expects to see '>' before the payload rather than a second CRLF.
func (a *AT) writeCommand(req *request) error {
	a.waitWriteGuard()
	line := "AT" + req.cmd + "\r\n"
	if req.prompt != nil {
		line = line[:len(line)-1]
	}
	_, err := a.modem.Write([]byte(line))
	return err
}

// startWriteGuard and waitWriteGuard implement a short (20ms) quiet period
// after Init's escape sequence, giving any residual OK/ERROR time to
// propagate and be discarded before the first real command is sent.
func (a *AT) startWriteGuard() {
	a.wGuard = time.After(20 * time.Millisecond)
}

func (a *AT) waitWriteGuard() {
	if a.wGuard == nil {
		return
	}
	<-a.wGuard
	a.wGuard = nil
}

// lineReader owns the transport's read side. It reads one line at a time
// and, after delivering it, waits for the engine to say whether it may
// keep reading lines (nil) or must pause for a raw binary transfer (a
// channel it then blocks on until the transfer completes).
func (a *AT) lineReader() {
	for {
		line, err := readLine(a.br)
		if err != nil {
			close(a.linesCh)
			return
		}
		a.linesCh <- line
		if resume := <-a.ctrlCh; resume != nil {
			<-resume
		}
	}
}

// readLine reads one CRLF-terminated line, or the bare '>' SMS/data prompt
// which the modem sends without a line terminator.
func readLine(br *bufio.Reader) (string, error) {
	b, err := br.ReadByte()
	if err != nil {
		return "", err
	}
	if b == '>' {
		for {
			next, err := br.Peek(1)
			if err != nil || len(next) == 0 || next[0] != ' ' {
				break
			}
			br.ReadByte()
		}
		return ">", nil
	}
	var sb strings.Builder
	sb.WriteByte(b)
	for {
		c, err := br.ReadByte()
		if err != nil {
			return sb.String(), err
		}
		if c == '\n' {
			return strings.TrimRight(sb.String(), "\r"), nil
		}
		sb.WriteByte(c)
	}
}

// parseCmdID returns the identifier component of a command line: the
// portion prior to any '=' or '?', which is what info lines are prefixed
// with.
func parseCmdID(cmd string) string {
	if idx := strings.IndexAny(cmd, "=?"); idx >= 0 {
		return cmd[:idx]
	}
	return cmd
}
