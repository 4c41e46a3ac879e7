// Package sms provides SMS send/list/delete/SCA operations layered on the
// AT command slot arbiter, generalizing the text and PDU send paths the
// teacher's gsm package implements.
package sms

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/warthog618/sms/encoding/pdumode"

	"github.com/quectel/qmodem/at"
	"github.com/quectel/qmodem/info"
)

// Entry is one message returned by List, either from storage or a pending
// +CMTI notification resolved by the caller.
type Entry struct {
	Index  int
	Status string
	Origin string
	Stamp  string
	Body   string
}

// Store drives the +CMGx command family over an at.AT.
type Store struct {
	at      *at.AT
	sca     pdumode.SMSCAddress
	pduMode bool
	timeout time.Duration
}

// Option configures a Store on construction.
type Option func(*Store)

// WithPDUMode selects PDU mode for outgoing SMS (+CMGF=0) instead of the
// default text mode (+CMGF=1). Must be set before Init.
func WithPDUMode() Option {
	return func(s *Store) { s.pduMode = true }
}

// WithSCA overrides the SMS service centre address used when sending in
// PDU mode. Ignored in text mode, where the SIM's own SCA applies.
func WithSCA(sca pdumode.SMSCAddress) Option {
	return func(s *Store) { s.sca = sca }
}

// WithTimeout overrides the default command timeout used by Store's
// operations.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) { s.timeout = d }
}

// New creates a Store driving a over the given AT multiplexer.
func New(a *at.AT, opts ...Option) *Store {
	s := &Store{at: a, timeout: 10 * time.Second}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init selects text or PDU mode via +CMGF. It should be called once, after
// at.AT.Init (which selects verbose CME error reporting).
func (s *Store) Init(ctx context.Context) error {
	cmgf := "+CMGF=1"
	if s.pduMode {
		cmgf = "+CMGF=0"
	}
	_, err := s.at.Command(ctx, cmgf, s.timeout)
	return err
}

// Send transmits a text-mode SMS to number, returning the modem's message
// reference. It fails with ErrWrongMode if the Store was configured for
// PDU mode.
func (s *Store) Send(ctx context.Context, number, message string) (string, error) {
	if s.pduMode {
		return "", ErrWrongMode
	}
	i, err := s.at.SMSCommand(ctx, fmt.Sprintf(`+CMGS=%q`, number), message, s.timeout)
	if err != nil {
		return "", err
	}
	return parseMR(i)
}

// SendPDU transmits a TPDU in PDU mode, returning the modem's message
// reference. It fails with ErrWrongMode if the Store was configured for
// text mode.
func (s *Store) SendPDU(ctx context.Context, tpdu []byte) (string, error) {
	if !s.pduMode {
		return "", ErrWrongMode
	}
	pdu := pdumode.PDU{SMSC: s.sca, TPDU: tpdu}
	hex, err := pdu.MarshalHexString()
	if err != nil {
		return "", err
	}
	i, err := s.at.SMSCommand(ctx, fmt.Sprintf("+CMGS=%d", len(tpdu)), hex, s.timeout)
	if err != nil {
		return "", err
	}
	return parseMR(i)
}

func parseMR(i []string) (string, error) {
	for _, l := range i {
		if info.HasPrefix(l, "+CMGS") {
			return info.TrimPrefix(l, "+CMGS"), nil
		}
	}
	return "", ErrMalformedResponse
}

// List returns SMS entries matching status ("REC UNREAD" or "ALL"),
// filtered by offset and capped at max entries, mirroring the "CMGL is a
// special iterator" behaviour of the modem's line protocol: the reader
// extends the caller's array one line at a time rather than buffering the
// whole response.
func (s *Store) List(ctx context.Context, status string, offset, max int) ([]Entry, error) {
	var entries []Entry
	skipped := 0
	_, err := s.at.SMSListCommand(ctx, fmt.Sprintf("+CMGL=%q", status), s.timeout, func(line string) {
		if max > 0 && len(entries) >= max {
			return
		}
		e, ok := parseCMGL(line)
		if !ok {
			return
		}
		if skipped < offset {
			skipped++
			return
		}
		entries = append(entries, e)
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// parseCMGL parses one "+CMGL: <idx>,"<status>","<origin>",,"<stamp>"" line.
// The message body arrives on the following line(s); List does not pass
// those lines to this parser, in text or PDU mode, so Entry.Body is left
// empty for every entry List returns.
func parseCMGL(line string) (Entry, bool) {
	if !info.HasPrefix(line, "+CMGL") {
		return Entry{}, false
	}
	r := at.NewArgReader(info.TrimPrefix(line, "+CMGL"))
	idx, err := r.Int()
	if err != nil {
		return Entry{}, false
	}
	status, _ := r.String()
	origin, _ := r.String()
	r.String() // alpha tag, usually empty
	stamp, _ := r.String()
	return Entry{Index: idx, Status: status, Origin: origin, Stamp: stamp}, true
}

// Delete removes the message at index.
func (s *Store) Delete(ctx context.Context, index int) error {
	_, err := s.at.Command(ctx, "+CMGD="+strconv.Itoa(index), s.timeout)
	return err
}

// GetSCA retrieves the current SMS service centre address.
func (s *Store) GetSCA(ctx context.Context) (string, error) {
	i, err := s.at.Command(ctx, "+CSCA?", s.timeout)
	if err != nil {
		return "", err
	}
	for _, l := range i {
		if info.HasPrefix(l, "+CSCA") {
			r := at.NewArgReader(info.TrimPrefix(l, "+CSCA"))
			return r.String()
		}
	}
	return "", ErrMalformedResponse
}

// SetSCA sets the SMS service centre address used for text-mode sends.
func (s *Store) SetSCA(ctx context.Context, sca string) error {
	_, err := s.at.Command(ctx, fmt.Sprintf("+CSCA=%q", sca), s.timeout)
	return err
}

// PendingNotify decodes a +CMTI URC line ("+CMTI: \"SM\",<index>") into the
// storage name and index of the newly-arrived message.
func PendingNotify(line string) (storage string, index int, ok bool) {
	if !info.HasPrefix(line, "+CMTI") {
		return "", 0, false
	}
	r := at.NewArgReader(info.TrimPrefix(line, "+CMTI"))
	storage, err := r.String()
	if err != nil {
		return "", 0, false
	}
	index, err = r.Int()
	if err != nil {
		return "", 0, false
	}
	return storage, index, true
}
