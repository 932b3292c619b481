package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"wanderfield/simcore/internal/logging"
	"wanderfield/simcore/tools/roamer"
)

func main() {
	urlFlag := flag.String("url", "", "Websocket URL of the viewer bridge, e.g. ws://localhost:43170/ws")
	secret := flag.String("secret", "", "HMAC secret for signed access")
	subject := flag.String("subject", "roamer", "Token subject when a secret is provided")
	duration := flag.Duration("duration", 10*time.Second, "How long to wander before disconnecting")
	interval := flag.Duration("interval", 100*time.Millisecond, "Intent cadence")
	flag.Parse()

	if *urlFlag == "" {
		fmt.Fprintln(os.Stderr, "a websocket URL is required")
		flag.Usage()
		os.Exit(1)
	}

	//1.- An interrupt ends the wander early but still runs the close handshake.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *duration)
	defer cancel()

	report, err := roamer.Roam(ctx, roamer.Options{
		URL:      *urlFlag,
		Secret:   *secret,
		Subject:  *subject,
		Interval: *interval,
		Logger:   logging.L(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "roam failed: %v\n", err)
		os.Exit(2)
	}

	//2.- Render the wander report as JSON so callers can pipe the output elsewhere.
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode report: %v\n", err)
		os.Exit(3)
	}
}
