// Package stats aggregates latency samples and counters across load
// test clients and prints a run summary.
package stats

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Collector accumulates latency samples and named counters. All methods
// are goroutine-safe.
type Collector struct {
	mu        sync.Mutex
	latencies map[string][]time.Duration
	counters  map[string]int64
}

// NewCollector creates an empty Collector.
func NewCollector() *Collector {
	return &Collector{
		latencies: make(map[string][]time.Duration),
		counters:  make(map[string]int64),
	}
}

// Record adds one latency sample under the given label.
func (c *Collector) Record(label string, d time.Duration) {
	c.mu.Lock()
	c.latencies[label] = append(c.latencies[label], d)
	c.mu.Unlock()
}

// Add increments a named counter.
func (c *Collector) Add(name string, n int64) {
	c.mu.Lock()
	c.counters[name] += n
	c.mu.Unlock()
}

// percentile returns the p-th percentile of a sorted sample set.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}

// Summary prints counters and per-label latency percentiles.
func (c *Collector) Summary() {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Println("\n--- Summary ---")

	names := make([]string, 0, len(c.counters))
	for name := range c.counters {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %-24s %d\n", name, c.counters[name])
	}

	labels := make([]string, 0, len(c.latencies))
	for label := range c.latencies {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		samples := append([]time.Duration(nil), c.latencies[label]...)
		sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })

		fmt.Printf("  %s (n=%d): p50=%s p95=%s p99=%s max=%s\n",
			label, len(samples),
			percentile(samples, 0.50).Round(time.Millisecond),
			percentile(samples, 0.95).Round(time.Millisecond),
			percentile(samples, 0.99).Round(time.Millisecond),
			percentile(samples, 1.0).Round(time.Millisecond))
	}
}
