// Package urc dispatches unsolicited result codes to the package that owns
// their state: registration family lines to netinfo, open/close/data
// notifications to socket, the dnsgip sequence to dns, and incoming-SMS
// notifications to an optional caller callback.
package urc

import (
	"context"
	"strings"
	"sync"

	"github.com/quectel/qmodem/at"
	"github.com/quectel/qmodem/dns"
	"github.com/quectel/qmodem/info"
	"github.com/quectel/qmodem/netinfo"
	"github.com/quectel/qmodem/socket"
)

// bodies is the set of indication prefixes the dispatcher registers.
var bodies = []string{
	"+CMTI",
	"+QIOPEN",
	"+QSSLOPEN",
	"+QIURC",
	"+CREG",
	"+CGREG",
	"+CEREG",
	"+CGEV",
}

// Dispatcher wires at.AT.AddIndication to the owning packages' state.
type Dispatcher struct {
	at       *at.AT
	sockets  *socket.Table
	net      *netinfo.Registry
	resolver *dns.Resolver

	// OnIncomingSMS, if set, is called with the storage slot and index of
	// each "+CMTI" notification.
	OnIncomingSMS func(storage string, index int)

	wg sync.WaitGroup
}

// New creates a Dispatcher for the given modem and owning packages. sockets,
// net and resolver may be nil if that subsystem is not in use.
func New(a *at.AT, sockets *socket.Table, net *netinfo.Registry, resolver *dns.Resolver) *Dispatcher {
	return &Dispatcher{at: a, sockets: sockets, net: net, resolver: resolver}
}

// Start registers every indication and spawns one goroutine per channel to
// fan lines out to their owner. It returns once every indication is
// registered; the fan-out goroutines run until the AT closes or Stop is
// called.
func (d *Dispatcher) Start(ctx context.Context) error {
	for _, body := range bodies {
		c, err := d.at.AddIndication(body)
		if err != nil {
			d.Stop()
			return err
		}
		d.wg.Add(1)
		go d.pump(ctx, body, c)
	}
	return nil
}

// Stop cancels every registered indication, causing the fan-out goroutines
// started by Start to exit, and waits for them to finish.
func (d *Dispatcher) Stop() {
	for _, body := range bodies {
		d.at.CancelIndication(body)
	}
	d.wg.Wait()
}

func (d *Dispatcher) pump(ctx context.Context, body string, c <-chan string) {
	defer d.wg.Done()
	for line := range c {
		d.handle(ctx, body, line)
	}
}

func (d *Dispatcher) handle(ctx context.Context, body, line string) {
	switch body {
	case "+CMTI":
		if d.OnIncomingSMS == nil {
			return
		}
		storage, index, ok := decodeCMTI(line)
		if ok {
			d.OnIncomingSMS(storage, index)
		}

	case "+QIOPEN", "+QSSLOPEN":
		if d.sockets == nil {
			return
		}
		id, status, ok := decodeOpen(line, body)
		if ok {
			d.sockets.HandleOpenURC(id, status)
		}

	case "+QIURC":
		d.handleQIURC(line)

	case "+CREG", "+CGREG", "+CEREG":
		if d.net != nil {
			d.net.HandleURC(line)
		}

	case "+CGEV":
		d.handleCGEV(line)
	}
}

func (d *Dispatcher) handleQIURC(line string) {
	body := info.TrimPrefix(line, "+QIURC")
	ra := at.NewArgReader(body)
	kind, err := ra.String()
	if err != nil {
		return
	}
	switch kind {
	case "closed":
		if d.sockets == nil {
			return
		}
		if id, err := ra.Int(); err == nil {
			d.sockets.HandleClosedURC(id)
		}
	case "recv":
		if d.sockets == nil {
			return
		}
		if id, err := ra.Int(); err == nil {
			d.sockets.HandleRecvURC(id)
		}
	case "pdpdeact":
		if d.net != nil {
			d.net.HandlePDPLoss()
		}
		if d.sockets != nil {
			d.sockets.HandlePDPDeact()
		}
	case "dnsgip":
		if d.resolver != nil {
			d.resolver.HandleURC(line)
		}
	}
}

// handleCGEV applies a +CGEV network-originated PDP-context event; only the
// detach/deactivation forms matter here, since the driver never needs the
// other +CGEV variants (context modification, class change, etc).
func (d *Dispatcher) handleCGEV(line string) {
	body := info.TrimPrefix(line, "+CGEV")
	if !strings.Contains(body, "DETACH") && !strings.Contains(body, "DEACT") {
		return
	}
	if d.net != nil {
		d.net.HandlePDPLoss()
	}
	if d.sockets != nil {
		d.sockets.HandlePDPDeact()
	}
}

// decodeCMTI parses a "+CMTI: \"SM\",<index>" line.
func decodeCMTI(line string) (storage string, index int, ok bool) {
	if !info.HasPrefix(line, "+CMTI") {
		return "", 0, false
	}
	ra := at.NewArgReader(info.TrimPrefix(line, "+CMTI"))
	storage, err := ra.String()
	if err != nil {
		return "", 0, false
	}
	index, err = ra.Int()
	if err != nil {
		return "", 0, false
	}
	return storage, index, true
}

// decodeOpen parses a "+QIOPEN: <id>,<status>" or "+QSSLOPEN: <id>,<status>"
// line.
func decodeOpen(line, prefix string) (id, status int, ok bool) {
	if !info.HasPrefix(line, prefix) {
		return 0, 0, false
	}
	ra := at.NewArgReader(info.TrimPrefix(line, prefix))
	id, err := ra.Int()
	if err != nil {
		return 0, 0, false
	}
	status, err = ra.Int()
	if err != nil {
		return 0, 0, false
	}
	return id, status, true
}
