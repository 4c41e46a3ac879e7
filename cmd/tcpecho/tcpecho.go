// SPDX-License-Identifier: MIT
//
// Copyright © 2018 Kent Gibson <warthog618@gmail.com>.

// tcpecho connects to a TCP server, sends a short request and prints
// whatever comes back.
//
// This provides an example of using the socket facade, as well as a test
// that the driver works end-to-end against a real modem.
package main

import (
	"context"
	"flag"
	"io"
	"log"
	"time"

	"github.com/quectel/qmodem/at"
	"github.com/quectel/qmodem/modem"
	"github.com/quectel/qmodem/serial"
	"github.com/quectel/qmodem/socket"
	"github.com/quectel/qmodem/trace"
)

func main() {
	dev := flag.String("d", "/dev/ttyUSB0", "path to modem device")
	baud := flag.Int("b", 115200, "baud rate")
	host := flag.String("h", "1.2.3.4", "host to connect to")
	port := flag.Int("p", 80, "port to connect to")
	req := flag.String("r", "GET /\r\n", "request to send")
	timeout := flag.Duration("t", 10*time.Second, "command timeout period")
	verbose := flag.Bool("v", false, "log modem interactions")
	flag.Parse()

	p, err := serial.New(serial.WithPort(*dev), serial.WithBaud(*baud))
	if err != nil {
		log.Fatal(err)
	}
	defer p.Close()
	var mio io.ReadWriter = p
	if *verbose {
		mio = trace.New(p, log.New(log.Writer(), "", log.LstdFlags))
	}
	a := at.New(mio, at.WithTimeout(*timeout))
	ctx := context.Background()
	if err := a.Init(ctx); err != nil {
		log.Fatal(err)
	}
	m, err := modem.New(ctx, a)
	if err != nil {
		log.Fatal(err)
	}
	defer m.Close()

	id, err := m.NewSocket(ctx, socket.TCP, false)
	if err != nil {
		log.Fatal(err)
	}
	defer m.CloseSocket(ctx, id)

	cctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := m.Connect(cctx, id, *host, *port); err != nil {
		log.Fatal(err)
	}

	if _, err := m.Send(ctx, id, []byte(*req)); err != nil {
		log.Fatal(err)
	}

	buf := make([]byte, 4096)
	for {
		n, err := m.Recv(ctx, id, buf)
		if err != nil {
			log.Fatal(err)
		}
		if n == 0 {
			if err := m.Sock.WaitForData(ctx, id); err != nil {
				log.Fatal(err)
			}
			continue
		}
		log.Printf("received %d bytes: %q\n", n, buf[:n])
		return
	}
}
