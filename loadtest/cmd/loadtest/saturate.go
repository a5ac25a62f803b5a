package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/codehub/chat-relay/loadtest/client"
	"github.com/codehub/chat-relay/loadtest/stats"
)

// runSaturate implements the connection saturation test. It opens a
// specified number of WebSocket connections to the relay, ramping up
// over a configurable duration, then holds them open for a hold period.
// This finds the maximum connection capacity before the server starts
// rejecting or dropping connections.
func runSaturate(args []string) {
	fs := flag.NewFlagSet("saturate", flag.ExitOnError)
	url := fs.String("url", "ws://localhost:8080/ws", "WebSocket server URL")
	connections := fs.Int("connections", 1000, "Number of connections to open")
	rampUp := fs.Duration("ramp", 10*time.Second, "Ramp-up duration")
	hold := fs.Duration("hold", 30*time.Second, "Hold duration after all connections are open")
	concurrency := fs.Int("concurrency", 50, "Maximum simultaneous connection attempts during ramp-up")
	fs.Parse(args)

	fmt.Printf("Saturate test: %d connections to %s (ramp=%s, hold=%s, concurrency=%d)\n",
		*connections, *url, *rampUp, *hold, *concurrency)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := stats.NewCollector()

	var mu sync.Mutex
	clients := make([]*client.Client, 0, *connections)

	var connected, failed atomic.Int64

	interval := *rampUp / time.Duration(*connections)
	if interval <= 0 {
		interval = time.Millisecond
	}

	sem := make(chan struct{}, *concurrency)
	var wg sync.WaitGroup

	fmt.Println("\n--- Ramp-up phase ---")

	progressStop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				fmt.Printf("  [ramp] connected: %d/%d  errors: %d\n",
					connected.Load(), *connections, failed.Load())
			case <-progressStop:
				return
			}
		}
	}()

	rampTicker := time.NewTicker(interval)
	interrupted := false

	launched := 0
	for launched < *connections && !interrupted {
		select {
		case <-ctx.Done():
			fmt.Println("\nInterrupted during ramp-up.")
			interrupted = true
		case <-rampTicker.C:
			launched++
			wg.Add(1)
			sem <- struct{}{}

			go func() {
				defer wg.Done()
				defer func() { <-sem }()

				connCtx, connCancel := context.WithTimeout(ctx, 10*time.Second)
				defer connCancel()

				start := time.Now()
				c, err := client.New(connCtx, *url)
				if err != nil {
					failed.Add(1)
					return
				}
				if err := c.WaitForSession(connCtx); err != nil {
					failed.Add(1)
					c.Close()
					return
				}
				collector.Record("connect", time.Since(start))
				connected.Add(1)

				mu.Lock()
				clients = append(clients, c)
				mu.Unlock()
			}()
		}
	}
	rampTicker.Stop()
	wg.Wait()
	close(progressStop)

	fmt.Printf("Ramp-up complete: %d connected, %d failed\n", connected.Load(), failed.Load())

	if !interrupted {
		fmt.Printf("\n--- Hold phase (%s) ---\n", *hold)
		select {
		case <-time.After(*hold):
		case <-ctx.Done():
			fmt.Println("\nInterrupted during hold.")
		}
	}

	fmt.Println("\n--- Teardown ---")
	mu.Lock()
	for _, c := range clients {
		c.Close()
	}
	mu.Unlock()

	collector.Add("connections_opened", connected.Load())
	collector.Add("connection_errors", failed.Load())
	collector.Summary()
}
