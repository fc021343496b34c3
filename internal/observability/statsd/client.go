// Package statsd emits DogStatsD-style metrics over UDP.
package statsd

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Sink describes the minimal interface required to emit StatsD-style metrics.
type Sink interface {
	Count(name string, value int64, tags map[string]string)
	Gauge(name string, value float64, tags map[string]string)
	Timing(name string, value time.Duration, tags map[string]string)
}

const (
	// defaultMaxPacket keeps datagrams under a typical 1500 byte MTU.
	defaultMaxPacket     = 1432
	defaultFlushInterval = time.Second
	dialTimeout          = 5 * time.Second
)

// Config describes how to connect to a StatsD-compatible agent.
type Config struct {
	Enabled    bool
	Address    string
	Prefix     string
	Logger     *slog.Logger
	GlobalTags map[string]string

	// MaxPacketSize bounds one UDP datagram; lines are newline-joined up to it.
	MaxPacketSize int
	// FlushInterval is the longest a buffered line waits before it is sent.
	FlushInterval time.Duration
}

// Client buffers metric lines and writes them to a UDP socket in packets.
// It is safe for concurrent use. A nil *Client discards everything.
type Client struct {
	prefix     string
	globalTags map[string]string
	maxPacket  int
	interval   time.Duration
	logger     *slog.Logger

	mu     sync.Mutex
	conn   net.Conn
	buf    []byte
	timer  *time.Timer
	closed bool
}

var _ Sink = (*Client)(nil)

// NewClient dials the configured agent. When disabled or without an address it
// returns a client that drops metrics.
func NewClient(cfg Config) (*Client, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxPacket := cfg.MaxPacketSize
	if maxPacket <= 0 {
		maxPacket = defaultMaxPacket
	}
	interval := cfg.FlushInterval
	if interval <= 0 {
		interval = defaultFlushInterval
	}

	c := &Client{
		prefix:     sanitizePrefix(cfg.Prefix),
		globalTags: cloneTags(cfg.GlobalTags),
		maxPacket:  maxPacket,
		interval:   interval,
		logger:     logger.With("component", "statsd"),
	}

	address := strings.TrimSpace(cfg.Address)
	if !cfg.Enabled || address == "" {
		return c, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	conn, err := (&net.Dialer{}).DialContext(ctx, "udp", address)
	if err != nil {
		return nil, fmt.Errorf("statsd dial %s: %w", address, err)
	}
	c.conn = conn
	c.buf = make([]byte, 0, maxPacket)
	return c, nil
}

// Enabled reports whether the client actively emits metrics.
func (c *Client) Enabled() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil && !c.closed
}

// Count increments a counter metric.
func (c *Client) Count(name string, value int64, tags map[string]string) {
	c.emit(name, strconv.FormatInt(value, 10), "c", tags)
}

// Gauge records the current value for a gauge metric.
func (c *Client) Gauge(name string, value float64, tags map[string]string) {
	c.emit(name, formatFloat(value), "g", tags)
}

// Timing records a timing metric in milliseconds.
func (c *Client) Timing(name string, value time.Duration, tags map[string]string) {
	c.emit(name, formatFloat(float64(value)/float64(time.Millisecond)), "ms", tags)
}

// Flush sends any buffered lines immediately.
func (c *Client) Flush() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushLocked()
}

// Close flushes buffered lines and releases the UDP socket. Safe to call twice.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.conn == nil {
		c.closed = true
		return nil
	}
	c.flushLocked()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.closed = true
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *Client) emit(name, value, kind string, tags map[string]string) {
	if c == nil {
		return
	}
	metric := c.metricName(name)
	if metric == "" {
		return
	}
	line := metric + ":" + value + "|" + kind + formatTags(c.globalTags, tags)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || c.closed {
		return
	}
	c.appendLocked(line)
}

// appendLocked adds line to the pending packet, sending the packet first when
// the line would not fit. Lines longer than a packet are sent on their own.
func (c *Client) appendLocked(line string) {
	need := len(line)
	if len(c.buf) > 0 {
		need++
	}
	if len(c.buf)+need > c.maxPacket {
		c.flushLocked()
	}
	if len(line) >= c.maxPacket {
		c.send([]byte(line))
		return
	}
	if len(c.buf) > 0 {
		c.buf = append(c.buf, '\n')
	}
	c.buf = append(c.buf, line...)

	if c.timer == nil {
		c.timer = time.AfterFunc(c.interval, c.Flush)
	}
}

func (c *Client) flushLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if len(c.buf) == 0 || c.conn == nil {
		return
	}
	c.send(c.buf)
	c.buf = c.buf[:0]
}

func (c *Client) send(packet []byte) {
	if _, err := c.conn.Write(packet); err != nil {
		c.logger.Debug("statsd write failed", "error", err, "bytes", len(packet))
	}
}

func (c *Client) metricName(name string) string {
	normalized := normalizeMetricName(name)
	if normalized == "" {
		return ""
	}
	if c.prefix == "" {
		return normalized
	}
	return c.prefix + "." + normalized
}

// Tagged wraps sink so every metric carries tags. Per-call tags win on conflict.
// A nil sink stays nil.
//
//nolint:ireturn // Sink is the abstraction callers depend on.
func Tagged(sink Sink, tags map[string]string) Sink {
	if sink == nil {
		return nil
	}
	return &taggedSink{next: sink, tags: cloneTags(tags)}
}

type taggedSink struct {
	next Sink
	tags map[string]string
}

func (t *taggedSink) merge(local map[string]string) map[string]string {
	out := make(map[string]string, len(t.tags)+len(local))
	for k, v := range t.tags {
		out[k] = v
	}
	for k, v := range local {
		out[k] = v
	}
	return out
}

func (t *taggedSink) Count(name string, value int64, tags map[string]string) {
	t.next.Count(name, value, t.merge(tags))
}

func (t *taggedSink) Gauge(name string, value float64, tags map[string]string) {
	t.next.Gauge(name, value, t.merge(tags))
}

func (t *taggedSink) Timing(name string, value time.Duration, tags map[string]string) {
	t.next.Timing(name, value, t.merge(tags))
}

func sanitizePrefix(prefix string) string {
	return strings.Trim(strings.TrimSpace(prefix), ".")
}

// metricReplacer maps characters the line protocol reserves to underscores.
var metricReplacer = strings.NewReplacer(" ", "_", "/", "_", ":", "_", "|", "_", "@", "_", "#", "_")

func normalizeMetricName(name string) string {
	n := metricReplacer.Replace(strings.TrimSpace(name))
	for strings.Contains(n, "..") {
		n = strings.ReplaceAll(n, "..", ".")
	}
	return strings.Trim(n, ".")
}

// tagReplacer strips separators that would break the |#k:v,k:v tag section.
var tagReplacer = strings.NewReplacer(",", "_", "|", "_", "#", "_")

func formatTags(global, local map[string]string) string {
	if len(global)+len(local) == 0 {
		return ""
	}
	merged := make(map[string]string, len(global)+len(local))
	for k, v := range global {
		merged[k] = v
	}
	for k, v := range local {
		if key := strings.TrimSpace(k); key != "" {
			merged[key] = strings.TrimSpace(v)
		}
	}
	if len(merged) == 0 {
		return ""
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("|#")
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(tagReplacer.Replace(k))
		if v := merged[k]; v != "" {
			b.WriteByte(':')
			b.WriteString(tagReplacer.Replace(v))
		}
	}
	return b.String()
}

func cloneTags(tags map[string]string) map[string]string {
	cp := make(map[string]string, len(tags))
	for k, v := range tags {
		if key := strings.TrimSpace(k); key != "" {
			cp[key] = strings.TrimSpace(v)
		}
	}
	return cp
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
