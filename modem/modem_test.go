package modem

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quectel/qmodem/at"
)

func TestNewAssemblesSubsystems(t *testing.T) {
	cmdSet := map[string][]string{
		"AT+CMGF=1\r\n": {"OK\r\n"},
	}
	a, mm := setupModem(t, cmdSet)
	defer mm.Close()

	m, err := New(context.Background(), a)
	require.Nil(t, err)
	defer m.Close()
	assert.NotNil(t, m.Sock)
	assert.NotNil(t, m.Net)
	assert.NotNil(t, m.DNS)
}

func TestRSSIMapping(t *testing.T) {
	cmdSet := map[string][]string{
		"AT+CMGF=1\r\n": {"OK\r\n"},
		"AT+CSQ\r\n":    {"+CSQ: 16,99\r\n", "OK\r\n"},
	}
	a, mm := setupModem(t, cmdSet)
	defer mm.Close()
	m, err := New(context.Background(), a)
	require.Nil(t, err)
	defer m.Close()

	dbm, err := m.RSSI(context.Background())
	require.Nil(t, err)
	assert.Equal(t, -113+2*16, dbm)
}

func TestRSSIUnknown(t *testing.T) {
	cmdSet := map[string][]string{
		"AT+CMGF=1\r\n": {"OK\r\n"},
		"AT+CSQ\r\n":    {"+CSQ: 99,99\r\n", "OK\r\n"},
	}
	a, mm := setupModem(t, cmdSet)
	defer mm.Close()
	m, err := New(context.Background(), a)
	require.Nil(t, err)
	defer m.Close()

	dbm, err := m.RSSI(context.Background())
	require.Nil(t, err)
	assert.Equal(t, 0, dbm)
}

func TestOperatorsParsing(t *testing.T) {
	cmdSet := map[string][]string{
		"AT+CMGF=1\r\n":  {"OK\r\n"},
		"AT+COPS=?\r\n": {
			`+COPS: (2,"Carrier One","C1","12345",7),(1,"Carrier Two","C2","65432",0),,(0,1,2,3,4),(0,1,2)` + "\r\n",
			"OK\r\n",
		},
	}
	a, mm := setupModem(t, cmdSet)
	defer mm.Close()
	m, err := New(context.Background(), a)
	require.Nil(t, err)
	defer m.Close()

	ops, err := m.Operators(context.Background())
	require.Nil(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, "Carrier One", ops[0].Long)
	assert.Equal(t, "12345", ops[0].Numeric)
	assert.Equal(t, 7, ops[0].AcT)
	assert.Equal(t, "Carrier Two", ops[1].Long)
}

func TestMobileInfo(t *testing.T) {
	cmdSet := map[string][]string{
		"AT+CMGF=1\r\n":  {"OK\r\n"},
		"AT+GSN\r\n":     {"123456789012345\r\n", "OK\r\n"},
		"AT+QCCID\r\n":   {"+QCCID: 8988211000000000000\r\n", "OK\r\n"},
	}
	a, mm := setupModem(t, cmdSet)
	defer mm.Close()
	m, err := New(context.Background(), a)
	require.Nil(t, err)
	defer m.Close()

	mi, err := m.MobileInfo(context.Background())
	require.Nil(t, err)
	assert.Equal(t, "123456789012345", mi.IMEI)
	assert.Equal(t, "8988211000000000000", mi.ICCID)
}

func TestAttach(t *testing.T) {
	cmdSet := map[string][]string{
		"AT+CMGF=1\r\n":  {"OK\r\n"},
		"AT+CGATT=1\r\n": {"OK\r\n"},
	}
	a, mm := setupModem(t, cmdSet)
	defer mm.Close()
	m, err := New(context.Background(), a)
	require.Nil(t, err)
	defer m.Close()

	require.Nil(t, m.Attach(context.Background(), true))
}

func TestDetach(t *testing.T) {
	cmdSet := map[string][]string{
		"AT+CMGF=1\r\n":  {"OK\r\n"},
		"AT+CGATT=0\r\n": {"OK\r\n"},
	}
	a, mm := setupModem(t, cmdSet)
	defer mm.Close()
	m, err := New(context.Background(), a)
	require.Nil(t, err)
	defer m.Close()

	require.Nil(t, m.Detach(context.Background()))
}

func TestPendingSMS(t *testing.T) {
	cmdSet := map[string][]string{
		"AT+CMGF=1\r\n": {"OK\r\n"},
		`AT+CMGL="REC UNREAD"` + "\r\n": {
			`+CMGL: 3,"REC UNREAD","+12345",,"21/01/02,03:04:05+00"` + "\r\n",
			"OK\r\n",
		},
	}
	a, mm := setupModem(t, cmdSet)
	defer mm.Close()
	m, err := New(context.Background(), a)
	require.Nil(t, err)
	defer m.Close()

	entries, err := m.PendingSMS(context.Background())
	require.Nil(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 3, entries[0].Index)
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
