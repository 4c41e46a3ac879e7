package urc

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quectel/qmodem/at"
	"github.com/quectel/qmodem/dns"
	"github.com/quectel/qmodem/netinfo"
	"github.com/quectel/qmodem/socket"
)

func TestDispatchRegistration(t *testing.T) {
	a, mm := setupModem(t, nil)
	defer mm.Close()
	net := netinfo.New(a)
	d := New(a, nil, net, nil)
	require.Nil(t, d.Start(context.Background()))
	defer d.Stop()

	mm.push(`+CGREG: 1` + "\r\n")
	waitFor(t, func() bool { return net.Registered() })
}

func TestDispatchIncomingSMS(t *testing.T) {
	a, mm := setupModem(t, nil)
	defer mm.Close()
	d := New(a, nil, nil, nil)
	var gotStorage string
	var gotIndex int
	done := make(chan struct{})
	d.OnIncomingSMS = func(storage string, index int) {
		gotStorage, gotIndex = storage, index
		close(done)
	}
	require.Nil(t, d.Start(context.Background()))
	defer d.Stop()

	mm.push(`+CMTI: "SM",4` + "\r\n")
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("OnIncomingSMS not called")
	}
	assert.Equal(t, "SM", gotStorage)
	assert.Equal(t, 4, gotIndex)
}

func TestDispatchSocketOpen(t *testing.T) {
	cmdSet := map[string][]string{
		`AT+QIOPEN=1,0,"TCP","example.com",80,0,0` + "\r\n": {"OK\r\n"},
	}
	a, mm := setupModem(t, cmdSet)
	defer mm.Close()
	net := netinfo.New(a)
	net.HandleURC("+CGREG: 1")
	tbl := socket.NewTable(a, net)
	d := New(a, tbl, net, nil)
	require.Nil(t, d.Start(context.Background()))
	defer d.Stop()

	id, err := tbl.New(context.Background(), socket.TCP, false)
	require.Nil(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- tbl.Connect(context.Background(), id, "example.com", 80) }()

	time.Sleep(20 * time.Millisecond)
	mm.push("+QIOPEN: 0,0\r\n")

	select {
	case err := <-errCh:
		assert.Nil(t, err)
	case <-time.After(time.Second):
		t.Fatal("connect did not complete")
	}
}

func TestDispatchDNSGIP(t *testing.T) {
	cmdSet := map[string][]string{
		`AT+QIDNSGIP=1,"example.com"` + "\r\n": {"OK\r\n"},
	}
	a, mm := setupModem(t, cmdSet)
	defer mm.Close()
	resolver := dns.New(a)
	d := New(a, nil, nil, resolver)
	require.Nil(t, d.Start(context.Background()))
	defer d.Stop()

	resultCh := make(chan string, 1)
	go func() {
		ip, err := resolver.Resolve(context.Background(), 1, "example.com")
		require.Nil(t, err)
		resultCh <- ip
	}()

	time.Sleep(20 * time.Millisecond)
	mm.push(`+QIURC: "dnsgip",0,1,600` + "\r\n")
	mm.push(`+QIURC: "dnsgip","93.184.216.34"` + "\r\n")

	select {
	case ip := <-resultCh:
		assert.Equal(t, "93.184.216.34", ip)
	case <-time.After(time.Second):
		t.Fatal("resolve did not complete")
	}
}

func TestCGEVTriggersPDPLoss(t *testing.T) {
	a, mm := setupModem(t, nil)
	defer mm.Close()
	net := netinfo.New(a)
	net.HandleURC("+CGREG: 1")
	tbl := socket.NewTable(a, net)
	id, err := tbl.New(context.Background(), socket.TCP, false)
	require.Nil(t, err)

	d := New(a, tbl, net, nil)
	require.Nil(t, d.Start(context.Background()))
	defer d.Stop()

	mm.push("+CGEV: ME DETACH\r\n")
	waitFor(t, func() bool {
		_, sendErr := tbl.Send(context.Background(), id, []byte("x"))
		return sendErr == socket.ErrClosed
	})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

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

func (m *mockModem) push(line string) {
	m.r <- []byte(line)
}

func (m *mockModem) Close() error {
	if !m.closed {
		m.closed = true
		close(m.r)
	}
	return nil
}

func setupModem(t *testing.T, cmdSet map[string][]string) (*at.AT, *mockModem) {
	mm := &mockModem{cmdSet: cmdSet, r: make(chan []byte, 64)}
	var modem io.ReadWriter = mm
	a := at.New(modem, at.WithTimeout(time.Second))
	require.NotNil(t, a)
	return a, mm
}
