// Package metrics exposes relay counters in Prometheus text format without
// pulling in the full client_golang dependency.
package metrics

import (
	"fmt"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Collector is the process-wide metrics registry.
var Collector = NewCollector()

type MetricsCollector struct {
	mu         sync.RWMutex
	counters   []*Counter
	gauges     []*Gauge
	histograms []*Histogram
	startTime  time.Time
}

func NewCollector() *MetricsCollector {
	return &MetricsCollector{startTime: time.Now()}
}

func (c *MetricsCollector) Uptime() time.Duration {
	return time.Since(c.startTime)
}

// Counter is a monotonically increasing counter.
type Counter struct {
	name  string
	help  string
	value atomic.Int64
}

func (c *Counter) Inc()         { c.value.Add(1) }
func (c *Counter) Add(n int64)  { c.value.Add(n) }
func (c *Counter) Value() int64 { return c.value.Load() }

// Gauge is a value that can go up and down.
type Gauge struct {
	name  string
	help  string
	value atomic.Int64
}

func (g *Gauge) Inc()         { g.value.Add(1) }
func (g *Gauge) Dec()         { g.value.Add(-1) }
func (g *Gauge) Set(v int64)  { g.value.Store(v) }
func (g *Gauge) Value() int64 { return g.value.Load() }

// Histogram tracks a value distribution over fixed buckets.
type Histogram struct {
	name    string
	help    string
	mu      sync.Mutex
	count   int64
	sum     float64
	buckets []histBucket
}

type histBucket struct {
	le    float64
	count int64
}

func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i := range h.buckets {
		if v <= h.buckets[i].le {
			h.buckets[i].count++
		}
	}
}

func (c *MetricsCollector) Counter(name, help string) *Counter {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ctr := range c.counters {
		if ctr.name == name {
			return ctr
		}
	}
	ctr := &Counter{name: name, help: help}
	c.counters = append(c.counters, ctr)
	return ctr
}

func (c *MetricsCollector) Gauge(name, help string) *Gauge {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, g := range c.gauges {
		if g.name == name {
			return g
		}
	}
	g := &Gauge{name: name, help: help}
	c.gauges = append(c.gauges, g)
	return g
}

func (c *MetricsCollector) Histogram(name, help string, buckets []float64) *Histogram {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, h := range c.histograms {
		if h.name == name {
			return h
		}
	}
	sort.Float64s(buckets)
	hb := make([]histBucket, len(buckets))
	for i, b := range buckets {
		hb[i] = histBucket{le: b}
	}
	h := &Histogram{name: name, help: help, buckets: hb}
	c.histograms = append(c.histograms, h)
	return h
}

// Handler renders all registered metrics in Prometheus exposition format.
func (c *MetricsCollector) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		var sb strings.Builder

		fmt.Fprintf(&sb, "# HELP botrelay_uptime_seconds Time since start in seconds\n")
		fmt.Fprintf(&sb, "# TYPE botrelay_uptime_seconds gauge\n")
		fmt.Fprintf(&sb, "botrelay_uptime_seconds %d\n", int64(c.Uptime().Seconds()))

		c.mu.RLock()
		counters := c.counters
		gauges := c.gauges
		histograms := c.histograms
		c.mu.RUnlock()

		for _, ctr := range counters {
			fmt.Fprintf(&sb, "# HELP %s %s\n", ctr.name, ctr.help)
			fmt.Fprintf(&sb, "# TYPE %s counter\n", ctr.name)
			fmt.Fprintf(&sb, "%s %d\n", ctr.name, ctr.Value())
		}
		for _, g := range gauges {
			fmt.Fprintf(&sb, "# HELP %s %s\n", g.name, g.help)
			fmt.Fprintf(&sb, "# TYPE %s gauge\n", g.name)
			fmt.Fprintf(&sb, "%s %d\n", g.name, g.Value())
		}
		for _, h := range histograms {
			h.mu.Lock()
			fmt.Fprintf(&sb, "# HELP %s %s\n", h.name, h.help)
			fmt.Fprintf(&sb, "# TYPE %s histogram\n", h.name)
			for _, b := range h.buckets {
				le := fmt.Sprintf("%g", b.le)
				if math.IsInf(b.le, 1) {
					le = "+Inf"
				}
				fmt.Fprintf(&sb, "%s_bucket{le=%q} %d\n", h.name, le, b.count)
			}
			fmt.Fprintf(&sb, "%s_count %d\n", h.name, h.count)
			fmt.Fprintf(&sb, "%s_sum %f\n", h.name, h.sum)
			h.mu.Unlock()
		}

		fmt.Fprint(w, sb.String())
	}
}

// Metrics used across the relay.
var (
	UpdatesTotal    = Collector.Counter("botrelay_updates_total", "Total webhook updates accepted")
	CompletedTotal  = Collector.Counter("botrelay_completed_total", "Updates relayed to completion")
	UnmatchedTotal  = Collector.Counter("botrelay_unmatched_total", "Updates from unbound senders or tenants without credentials")
	FailedTotal     = Collector.Counter("botrelay_failed_total", "Updates that ended in a failure state")
	AIErrorsTotal   = Collector.Counter("botrelay_ai_errors_total", "AI streams terminated by an error marker")
	SendErrorsTotal = Collector.Counter("botrelay_send_errors_total", "Failed outbound platform sends")
	InflightUpdates = Collector.Gauge("botrelay_inflight_updates", "Updates currently being processed")

	UpdateDuration = Collector.Histogram("botrelay_update_duration_seconds", "Full relay duration per update",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, math.Inf(1)})
)
