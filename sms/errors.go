package sms

import "errors"

var (
	// ErrMalformedResponse indicates the modem returned a badly formed
	// response to an SMS command.
	ErrMalformedResponse = errors.New("modem returned malformed response")

	// ErrWrongMode indicates the Store is operating in the wrong mode
	// (text vs PDU) to support the requested operation.
	ErrWrongMode = errors.New("modem is in the wrong mode")
)
