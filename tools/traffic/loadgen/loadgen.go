// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Binary loadgen measures bulk TCP throughput across an emulated
// network.  In server mode it accepts connections and discards
// whatever arrives until it is terminated; in client mode it writes
// to the server for a fixed duration and prints the achieved rate as
// one JSON object on stdout.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"k8s.io/klog/v2"
)

var (
	mode     = flag.String("mode", "", "Role to assume: server or client.")
	listen   = flag.String("listen", ":5001", "Address the server listens on.")
	connect  = flag.String("connect", "", "Server address the client connects to, as host:port.")
	duration = flag.Duration("duration", 10*time.Second, "Length of the client's timed transfer.")

	// dialTimeout bounds the client's connection attempt.
	dialTimeout = 10 * time.Second
)

// result is the wire form the harness parses from stdout.
type result struct {
	Bytes         int64   `json:"bytes"`
	Seconds       float64 `json:"seconds"`
	BitsPerSecond float64 `json:"bits_per_second"`
}

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	switch *mode {
	case "server":
		serve()
	case "client":
		transfer()
	default:
		klog.Exitf("Mode must be server or client, got %q.", *mode)
	}
}

// serve accepts and drains connections until the process is told to
// stop.  The harness terminates it once the measurement is read.
func serve() {
	ln, err := net.Listen("tcp", *listen)
	if err != nil {
		klog.Exitf("Cannot listen on %s, err: %v", *listen, err)
	}
	klog.Infof("Listening on %s", ln.Addr())

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	go func() {
		sig := <-sigs
		klog.Infof("Received signal %v, shutting down", sig)
		ln.Close()
		os.Exit(0)
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			klog.Exitf("Cannot accept connection, err: %v", err)
		}
		go func() {
			defer conn.Close()
			n, err := io.Copy(io.Discard, conn)
			if err != nil {
				klog.Warningf("Connection from %s ended after %d bytes, err: %v", conn.RemoteAddr(), n, err)
				return
			}
			klog.Infof("Connection from %s delivered %d bytes", conn.RemoteAddr(), n)
		}()
	}
}

// transfer writes to the server for the configured duration and
// reports the measured rate.
func transfer() {
	if *connect == "" {
		klog.Exitf("Client mode requires a server address.")
	}
	conn, err := net.DialTimeout("tcp", *connect, dialTimeout)
	if err != nil {
		klog.Exitf("Cannot connect to %s, err: %v", *connect, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(*duration)
	if err := conn.SetWriteDeadline(deadline); err != nil {
		klog.Exitf("Cannot set write deadline, err: %v", err)
	}

	buf := make([]byte, 64*1024)
	start := time.Now()
	var sent int64
	for time.Now().Before(deadline) {
		n, err := conn.Write(buf)
		sent += int64(n)
		if err != nil {
			// The deadline ends the transfer once the send buffer
			// fills; anything else is a broken measurement.
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				break
			}
			klog.Exitf("Transfer to %s failed after %d bytes, err: %v", *connect, sent, err)
		}
	}
	elapsed := time.Since(start)

	res := result{
		Bytes:         sent,
		Seconds:       elapsed.Seconds(),
		BitsPerSecond: float64(sent*8) / elapsed.Seconds(),
	}
	klog.Infof("Sent %d bytes in %v (%.1f Mbit/s)", sent, elapsed.Round(time.Millisecond), res.BitsPerSecond/1e6)
	if err := json.NewEncoder(os.Stdout).Encode(res); err != nil {
		klog.Exitf("Cannot write result, err: %v", err)
	}
}
