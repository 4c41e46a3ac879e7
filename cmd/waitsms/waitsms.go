// SPDX-License-Identifier: MIT
//
// Copyright © 2018 Kent Gibson <warthog618@gmail.com>.

// waitsms waits for SMSs to be received by the modem, and dumps them to
// stdout.
//
// This provides an example of using the URC dispatcher's OnIncomingSMS
// callback, as well as a test that the library works with the modem.
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
	"github.com/quectel/qmodem/trace"
)

func main() {
	dev := flag.String("d", "/dev/ttyUSB2", "path to modem device")
	baud := flag.Int("b", 115200, "baud rate")
	period := flag.Duration("p", 10*time.Minute, "period to wait")
	timeout := flag.Duration("t", 10*time.Second, "command timeout period")
	verbose := flag.Bool("v", false, "log modem interactions")
	flag.Parse()
	p, err := serial.New(serial.WithPort(*dev), serial.WithBaud(*baud))
	if err != nil {
		log.Println(err)
		return
	}
	defer p.Close()
	var mio io.ReadWriter = p
	if *verbose {
		mio = trace.New(p, log.New(log.Writer(), "", log.LstdFlags))
	}
	a := at.New(mio, at.WithTimeout(*timeout))
	ctx, cancel := context.WithTimeout(context.Background(), *period)
	defer cancel()
	if err := a.Init(ctx); err != nil {
		log.Println(err)
		return
	}
	m, err := modem.New(ctx, a)
	if err != nil {
		log.Println(err)
		return
	}
	defer m.Close()

	m.URC.OnIncomingSMS = func(storage string, index int) {
		entries, err := m.ListSMS(ctx, "ALL", 0, 0)
		if err != nil {
			log.Println(err)
			return
		}
		for _, e := range entries {
			if e.Index != index {
				continue
			}
			log.Printf("%s: %s\n", e.Origin, e.Body)
			if err := m.DeleteSMS(ctx, e.Index); err != nil {
				log.Println(err)
			}
		}
	}

	go pollSignalQuality(ctx, m)

	log.Println("waiting for SMSs...")
	<-ctx.Done()
	log.Println("exiting...")
}

// pollSignalQuality polls the modem to read signal quality every minute.
//
// This is run in parallel to the incoming-SMS callback to demonstrate
// separate goroutines interacting with the modem.
func pollSignalQuality(ctx context.Context, m *modem.Modem) {
	for {
		select {
		case <-time.After(time.Minute):
			dbm, err := m.RSSI(ctx)
			if err != nil {
				log.Println(err)
			} else {
				log.Printf("Signal quality: %d dBm\n", dbm)
			}
		case <-ctx.Done():
			return
		}
	}
}
