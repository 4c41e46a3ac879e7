// SPDX-License-Identifier: MIT
//
// Copyright © 2018 Kent Gibson <warthog618@gmail.com>.

// modeminfo collects and displays information about the modem and its
// current network state.
//
// This serves as an example of how to drive the modem package, as well as
// providing information which may be useful for debugging.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/quectel/qmodem/at"
	"github.com/quectel/qmodem/modem"
	"github.com/quectel/qmodem/serial"
	"github.com/quectel/qmodem/trace"
)

var version = "undefined"

func main() {
	dev := flag.String("d", "/dev/ttyUSB0", "path to modem device")
	baud := flag.Int("b", 115200, "baud rate")
	timeout := flag.Duration("t", 10*time.Second, "command timeout period")
	verbose := flag.Bool("v", false, "log modem interactions")
	vsn := flag.Bool("version", false, "report version and exit")
	flag.Parse()
	if *vsn {
		fmt.Printf("%s %s\n", os.Args[0], version)
		os.Exit(0)
	}
	p, err := serial.New(serial.WithPort(*dev), serial.WithBaud(*baud))
	if err != nil {
		log.Println(err)
		return
	}
	defer p.Close()
	var mio io.ReadWriter = p
	if *verbose {
		mio = trace.New(p, log.New(os.Stdout, "", log.LstdFlags))
	}
	a := at.New(mio, at.WithTimeout(*timeout))
	ctx := context.Background()
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

	time.Sleep(200 * time.Millisecond) // let the first registration URCs land

	mi, err := m.MobileInfo(ctx)
	if err != nil {
		fmt.Println("mobile info:", err)
	} else {
		fmt.Printf("IMEI:  %s\n", mi.IMEI)
		fmt.Printf("ICCID: %s\n", mi.ICCID)
	}

	ni := m.NetworkInfo()
	fmt.Printf("registered: %v  RAT: %v  LAC: %s  CI: %s\n", ni.Registered, ni.RAT, ni.LAC, ni.CI)

	if dbm, err := m.RSSI(ctx); err != nil {
		fmt.Println("rssi:", err)
	} else {
		fmt.Printf("RSSI: %d dBm\n", dbm)
	}

	li, err := m.LinkInfo(ctx)
	if err != nil {
		fmt.Println("link info:", err)
	} else {
		fmt.Printf("serving cell: %s\n", li.Raw)
	}

	sca, err := m.GetSCA(ctx)
	if err != nil {
		fmt.Println("SMS service centre:", err)
	} else {
		fmt.Printf("SMS service centre: %s\n", sca)
	}
}
