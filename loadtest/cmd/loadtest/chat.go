package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/codehub/chat-relay/loadtest/client"
	"github.com/codehub/chat-relay/loadtest/stats"
)

// runChat implements the room chat load test. Simulated users are
// spread across a set of rooms; each connects, joins its room, then
// sends messages at a fixed interval while measuring broadcast delivery
// latency via an embedded send timestamp.
func runChat(args []string) {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	url := fs.String("url", "ws://localhost:8080/ws", "WebSocket server URL")
	users := fs.Int("users", 200, "Number of simulated users")
	roomList := fs.String("rooms", "general,angular,typescript,backend", "Comma-separated room ids to spread users across")
	rampUp := fs.Duration("ramp", 10*time.Second, "Ramp-up duration for connection creation")
	duration := fs.Duration("duration", 30*time.Second, "How long users chat after ramp-up")
	msgInterval := fs.Duration("msg-interval", 2*time.Second, "Interval between messages per user")
	msgSize := fs.Int("msg-size", 128, "Size of each message payload in bytes")
	fs.Parse(args)

	rooms := strings.Split(*roomList, ",")

	fmt.Printf("Chat test: %d users across %d rooms on %s (ramp=%s, duration=%s, interval=%s, msg-size=%d)\n",
		*users, len(rooms), *url, *rampUp, *duration, *msgInterval, *msgSize)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := stats.NewCollector()

	var sent, received, errors atomic.Int64

	// -----------------------------------------------------------------------
	// Phase 1 — Connect and join
	// -----------------------------------------------------------------------
	fmt.Println("\n--- Phase 1: Connect and join rooms ---")

	interval := *rampUp / time.Duration(*users)
	if interval <= 0 {
		interval = time.Millisecond
	}

	var mu sync.Mutex
	clients := make([]*client.Client, 0, *users)

	var wg sync.WaitGroup
	for i := 0; i < *users; i++ {
		select {
		case <-ctx.Done():
			i = *users
			continue
		case <-time.After(interval):
		}

		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()

			c, err := client.New(connCtx, *url)
			if err != nil {
				errors.Add(1)
				return
			}
			if err := c.WaitForSession(connCtx); err != nil {
				errors.Add(1)
				c.Close()
				return
			}

			// Delivery latency: every message embeds its send time;
			// every client that receives it records the age.
			c.On(client.TypeMessageNew, func(raw json.RawMessage) {
				received.Add(1)
				var frame struct {
					Message struct {
						Content string `json:"content"`
					} `json:"message"`
				}
				if err := json.Unmarshal(raw, &frame); err != nil {
					return
				}
				if ts, ok := parseSendTime(frame.Message.Content); ok {
					collector.Record("delivery", time.Since(ts))
				}
			})

			user := client.User{
				ID:   fmt.Sprintf("load-%d", n),
				Name: fmt.Sprintf("LoadUser%d", n),
			}
			roomID := rooms[n%len(rooms)]
			if err := c.JoinRoom(user, roomID); err != nil {
				errors.Add(1)
				c.Close()
				return
			}

			mu.Lock()
			clients = append(clients, c)
			mu.Unlock()

			// -----------------------------------------------------------
			// Phase 2 — Chat loop (per user)
			// -----------------------------------------------------------
			padding := strings.Repeat("x", *msgSize)
			ticker := time.NewTicker(*msgInterval)
			defer ticker.Stop()
			deadline := time.After(*rampUp + *duration)

			for {
				select {
				case <-ctx.Done():
					return
				case <-deadline:
					return
				case <-ticker.C:
					content := fmt.Sprintf("t=%d %s", time.Now().UnixNano(), padding)
					if err := c.SendMessage(user, content, roomID, false); err != nil {
						errors.Add(1)
						return
					}
					sent.Add(1)
				}
			}
		}(i)
	}

	wg.Wait()

	// -----------------------------------------------------------------------
	// Teardown
	// -----------------------------------------------------------------------
	fmt.Println("\n--- Teardown ---")
	mu.Lock()
	for _, c := range clients {
		c.Close()
	}
	mu.Unlock()

	collector.Add("messages_sent", sent.Load())
	collector.Add("messages_received", received.Load())
	collector.Add("errors", errors.Load())
	collector.Summary()
}

// parseSendTime extracts the embedded "t=<unixnano>" prefix from a load
// test message.
func parseSendTime(content string) (time.Time, bool) {
	if !strings.HasPrefix(content, "t=") {
		return time.Time{}, false
	}
	end := strings.IndexByte(content, ' ')
	if end < 0 {
		return time.Time{}, false
	}
	var nanos int64
	if _, err := fmt.Sscanf(content[2:end], "%d", &nanos); err != nil {
		return time.Time{}, false
	}
	return time.Unix(0, nanos), true
}
