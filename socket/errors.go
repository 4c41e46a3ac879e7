package socket

type errString string

func (e errString) Error() string { return string(e) }

var (
	// ErrUnsupported indicates an invalid protocol or an operation not
	// valid for the socket's protocol (e.g. Bind on a TCP socket).
	ErrUnsupported = errString("socket: unsupported operation")
	// ErrNetworkUnavailable indicates the modem has been unregistered for
	// at least 60 seconds, so a new socket or a send is refused outright.
	ErrNetworkUnavailable = errString("socket: network unavailable")
	// ErrNoFreeSocket indicates every entry in the socket table is in use.
	ErrNoFreeSocket = errString("socket: no free socket")
	// ErrTimeout indicates an open request exceeded its 150-second window.
	ErrTimeout = errString("socket: open timed out")
	// ErrConnectionRefused indicates the modem reported a non-zero open
	// status.
	ErrConnectionRefused = errString("socket: connection refused")
	// ErrClosed indicates an operation on a socket the modem has already
	// torn down.
	ErrClosed = errString("socket: closed")
	// ErrMalformedResponse indicates a read/receive notification could not
	// be parsed.
	ErrMalformedResponse = errString("socket: malformed response")
)
