// Test suite for the at package.
//
// mockModem does not attempt to emulate a real modem; it provides just
// enough of the AT protocol surface to exercise the multiplexer's state
// machine, including PROMPT and BUFFER mode transitions.
package at

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	a, mm := setupModem(t, nil)
	defer teardownModem(mm)
	require.NotNil(t, a)
	select {
	case <-a.Closed():
		t.Error("modem closed")
	default:
	}
}

func TestInit(t *testing.T) {
	cmdSet := map[string][]string{
		string(rune(27)) + "\r\n\r\n": {"\r\n"},
		"ATE0\r\n":                    {"OK\r\n"},
		"AT+CMEE=2\r\n":               {"OK\r\n"},
	}
	a, mm := setupModem(t, cmdSet)
	defer teardownModem(mm)
	err := a.Init(context.Background())
	assert.Nil(t, err)
}

func TestInitFailure(t *testing.T) {
	cmdSet := map[string][]string{
		string(rune(27)) + "\r\n\r\n": {"\r\n"},
		"ATE0\r\n":                    {"ERROR\r\n"},
	}
	a, mm := setupModem(t, cmdSet)
	defer teardownModem(mm)
	err := a.Init(context.Background())
	require.NotNil(t, err)
	assert.True(t, errors.Is(err, ErrError), "expected wrapped ErrError, got %v", err)
}

func TestCommand(t *testing.T) {
	cmdSet := map[string][]string{
		"AT\r\n":       {"OK\r\n"},
		"ATPASS\r\n":   {"OK\r\n"},
		"ATERR\r\n":    {"ERROR\r\n"},
		"ATINFO=1\r\n": {"info1\r\n", "info2\r\n", "+UNKNOWN: info3\r\n", "\r\n", "OK\r\n"},
		"ATCMS\r\n":    {"+CMS ERROR: 204\r\n"},
		"ATCME\r\n":    {"+CME ERROR: 42\r\n"},
	}
	m, mm := setupModem(t, cmdSet)
	defer teardownModem(mm)
	background := context.Background()
	cancelled, cancel := context.WithCancel(background)
	cancel()
	timeout, cancelTimeout := context.WithTimeout(background, 0)
	defer cancelTimeout()

	patterns := []struct {
		name string
		ctx  context.Context
		cmd  string
		info []string
		err  error
	}{
		{"empty", background, "", nil, nil},
		{"pass", background, "PASS", nil, nil},
		{"info", background, "INFO=1", []string{"info1", "info2", "+UNKNOWN: info3"}, nil},
		{"err", background, "ERR", nil, ErrError},
		{"cms", background, "CMS", nil, CMSError("204")},
		{"cme", background, "CME", nil, CMEError("42")},
		{"timeout", timeout, "", nil, context.DeadlineExceeded},
		{"cancelled", cancelled, "", nil, context.Canceled},
	}
	for _, p := range patterns {
		p := p
		t.Run(p.name, func(t *testing.T) {
			info, err := m.Command(p.ctx, p.cmd, time.Second)
			assert.Equal(t, p.err, err)
			assert.Equal(t, p.info, info)
		})
	}
}

func TestCommandTimeout(t *testing.T) {
	cmdSet := map[string][]string{
		"ATSTALL\r\n": {""},
	}
	m, mm := setupModem(t, cmdSet)
	defer teardownModem(mm)
	_, err := m.Command(context.Background(), "STALL", 10*time.Millisecond)
	assert.Equal(t, ErrTimeout, err)
}

func TestCommandClosed(t *testing.T) {
	m, mm := setupModem(t, nil)
	defer teardownModem(mm)
	mm.Close()
	select {
	case <-m.Closed():
	case <-time.After(time.Second):
		t.Error("timeout waiting for modem to close")
	}
	_, err := m.Command(context.Background(), "PASS", time.Second)
	assert.Equal(t, ErrClosed, err)
}

func TestPromptCommand(t *testing.T) {
	cmdSet := map[string][]string{
		"AT+QISEND=0,5\r": {">", "SEND OK\r\n", "OK\r\n"},
	}
	m, mm := setupModem(t, cmdSet)
	defer teardownModem(mm)
	info, err := m.PromptCommand(context.Background(), "+QISEND=0,5", []byte("hello"), nil, time.Second)
	assert.Nil(t, err)
	assert.Equal(t, []string{"SEND OK"}, info)
	assert.Equal(t, []byte("hello"), mm.lastPayload)
}

func TestSMSCommand(t *testing.T) {
	cmdSet := map[string][]string{
		`AT+CMGS="1234"` + "\r": {">", "+CMGS: 7\r\n", "OK\r\n"},
	}
	m, mm := setupModem(t, cmdSet)
	defer teardownModem(mm)
	info, err := m.SMSCommand(context.Background(), `+CMGS="1234"`, "hello", time.Second)
	assert.Nil(t, err)
	assert.Equal(t, []string{"+CMGS: 7"}, info)
	assert.Equal(t, []byte("hello\x1a"), mm.lastPayload)
}

func TestBufferCommandRead(t *testing.T) {
	cmdSet := map[string][]string{
		"AT+QIRD=0,64\r\n": {"+QIRD: 5\r\n", "hello", "\r\nOK\r\n"},
	}
	m, mm := setupModem(t, cmdSet)
	defer teardownModem(mm)
	var got []byte
	var trigger string
	info, err := m.BufferCommand(context.Background(), "+QIRD=0,64", time.Second, func(ctx context.Context, sess *BufferSession) error {
		trigger = sess.TriggerLine
		buf := make([]byte, 5)
		n, err := io.ReadFull(sess, buf)
		got = buf[:n]
		return err
	})
	assert.Nil(t, err)
	assert.Equal(t, "+QIRD: 5", trigger)
	assert.Equal(t, []byte("hello"), got)
	assert.Equal(t, []string(nil), info)
}

func TestBufferCommandWrite(t *testing.T) {
	cmdSet := map[string][]string{
		`AT+QFUPL="f.pem",5,5,0` + "\r\n": {"CONNECT\r\n", "+QFUPL: 5,0\r\n", "OK\r\n"},
	}
	m, mm := setupModem(t, cmdSet)
	defer teardownModem(mm)
	info, err := m.BufferCommand(context.Background(), `+QFUPL="f.pem",5,5,0`, time.Second, func(ctx context.Context, sess *BufferSession) error {
		_, err := sess.Write([]byte("abcde"))
		return err
	})
	assert.Nil(t, err)
	assert.Equal(t, []string{"+QFUPL: 5,0"}, info)
	assert.Equal(t, []byte("abcde"), mm.lastPayload)
}

func TestAddIndication(t *testing.T) {
	m, mm := setupModem(t, nil)
	defer teardownModem(mm)

	c, err := m.AddIndication("+CMTI")
	assert.Nil(t, err)
	require.NotNil(t, c)
	select {
	case n := <-c:
		t.Errorf("got notification without write: %v", n)
	default:
	}
	mm.push("+CMTI: \"SM\",3\r\n")
	select {
	case n := <-c:
		assert.Equal(t, `+CMTI: "SM",3`, n)
	case <-time.After(time.Second):
		t.Error("no notification received")
	}

	c2, err := m.AddIndication("+CMTI")
	assert.Equal(t, ErrIndicationExists, err)
	assert.Nil(t, c2)

	mm.Close()
	select {
	case <-c:
	case <-time.After(time.Second):
		t.Error("channel still open")
	}
	_, err = m.AddIndication("+CMTI")
	assert.Equal(t, ErrClosed, err)
}

func TestCancelIndication(t *testing.T) {
	m, mm := setupModem(t, nil)
	defer teardownModem(mm)

	c, err := m.AddIndication("+CMTI")
	require.Nil(t, err)
	m.CancelIndication("+CMTI")
	select {
	case <-c:
	case <-time.After(time.Second):
		t.Error("channel still open")
	}
	// covers cancelling an indication that no longer exists
	m.CancelIndication("+CMTI")
}

func TestIndicationIgnoredDuringRawStringCommand(t *testing.T) {
	// +GSN expects a single unprefixed IMEI line; a stray +QIND: arriving
	// first (never registered in commandTable) must not be folded into the
	// response.
	cmdSet := map[string][]string{
		"AT+GSN\r\n": {`+QIND: "PB DONE"` + "\r\n", "123456789012345\r\n", "OK\r\n"},
	}
	m, mm := setupModem(t, cmdSet)
	defer teardownModem(mm)
	info, err := m.Command(context.Background(), "+GSN", time.Second)
	assert.Nil(t, err)
	assert.Equal(t, []string{"123456789012345"}, info)
}

func TestURCDuringActiveCommand(t *testing.T) {
	// a URC must be dispatched to its channel even while an unrelated
	// command is in flight.
	cmdSet := map[string][]string{
		"ATPASS\r\n": {"+CMTI: \"SM\",1\r\n", "OK\r\n"},
	}
	m, mm := setupModem(t, cmdSet)
	defer teardownModem(mm)
	c, err := m.AddIndication("+CMTI")
	require.Nil(t, err)
	_, err = m.Command(context.Background(), "PASS", time.Second)
	assert.Nil(t, err)
	select {
	case n := <-c:
		assert.Equal(t, `+CMTI: "SM",1`, n)
	case <-time.After(time.Second):
		t.Error("URC not dispatched")
	}
}

// mockModem is an in-memory io.ReadWriter standing in for a serial
// transport. Writes are matched against cmdSet to produce the canned
// response lines a real modem would send; writes that don't match a known
// command (PROMPT/BUFFER mode payloads) are captured in lastPayload
// instead.
type mockModem struct {
	cmdSet      map[string][]string
	lastPayload []byte
	closed      bool
	r           chan []byte
}

func (m *mockModem) Read(p []byte) (int, error) {
	data, ok := <-m.r
	if !ok {
		return 0, errors.New("closed")
	}
	return copy(p, data), nil
}

func (m *mockModem) Write(p []byte) (int, error) {
	if m.closed {
		return 0, errors.New("closed")
	}
	v, ok := m.cmdSet[string(p)]
	if !ok {
		m.lastPayload = append(m.lastPayload, p...)
		return len(p), nil
	}
	for _, l := range v {
		if len(l) == 0 {
			continue
		}
		m.r <- []byte(l)
	}
	return len(p), nil
}

func (m *mockModem) push(s string) {
	m.r <- []byte(s)
}

func (m *mockModem) Close() error {
	if !m.closed {
		m.closed = true
		close(m.r)
	}
	return nil
}

func setupModem(t *testing.T, cmdSet map[string][]string) (*AT, *mockModem) {
	mm := &mockModem{cmdSet: cmdSet, r: make(chan []byte, 32)}
	var modem io.ReadWriter = mm
	a := New(modem)
	require.NotNil(t, a)
	return a, mm
}

func teardownModem(m *mockModem) {
	m.Close()
}
