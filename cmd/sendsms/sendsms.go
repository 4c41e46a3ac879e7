// SPDX-License-Identifier: MIT
//
// Copyright © 2018 Kent Gibson <warthog618@gmail.com>.

// sendsms sends an SMS using the modem.
//
// This provides an example of using the SMS store's Send command, as well
// as a test that the library works with the modem.
package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"time"

	"github.com/warthog618/sms"

	"github.com/quectel/qmodem/at"
	"github.com/quectel/qmodem/serial"
	smsstore "github.com/quectel/qmodem/sms"
	"github.com/quectel/qmodem/trace"
)

func main() {
	dev := flag.String("d", "/dev/ttyUSB0", "path to modem device")
	baud := flag.Int("b", 115200, "baud rate")
	num := flag.String("n", "+12345", "number to send to, in international format")
	msg := flag.String("m", "Zoot Zoot", "the message to send")
	timeout := flag.Duration("t", 5000*time.Millisecond, "command timeout period")
	verbose := flag.Bool("v", false, "log modem interactions")
	pduMode := flag.Bool("p", false, "send in PDU mode")
	flag.Parse()

	p, err := serial.New(serial.WithPort(*dev), serial.WithBaud(*baud))
	if err != nil {
		log.Fatal(err)
	}
	var mio io.ReadWriter = p
	if *verbose {
		mio = trace.New(p, log.New(os.Stdout, "", log.LstdFlags))
	}
	a := at.New(mio)
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	if err := a.Init(ctx); err != nil {
		log.Fatal(err)
	}
	opts := []smsstore.Option{smsstore.WithTimeout(*timeout)}
	if *pduMode {
		opts = append(opts, smsstore.WithPDUMode())
	}
	store := smsstore.New(a, opts...)
	if err := store.Init(ctx); err != nil {
		log.Fatal(err)
	}
	if *pduMode {
		sendPDU(ctx, store, *num, *msg)
		return
	}
	mr, err := store.Send(ctx, *num, *msg)
	log.Printf("%v %v\n", mr, err)
}

func sendPDU(ctx context.Context, store *smsstore.Store, number, msg string) {
	pdus, err := sms.Encode([]byte(msg), sms.To(number), sms.WithAllCharsets)
	if err != nil {
		log.Fatal(err)
	}
	for i, p := range pdus {
		tp, err := p.MarshalBinary()
		if err != nil {
			log.Fatal(err)
		}
		mr, err := store.SendPDU(ctx, tp)
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("PDU %d: %v\n", i+1, mr)
	}
}
