package statsd

import (
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listenUDP(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readPacket(t *testing.T, conn *net.UDPConn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	return string(buf[:n])
}

func TestNormalizeMetricName(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		" batch/job ":    "batch_job",
		"batch..fetch":   "batch.fetch",
		".reaper.sweep.": "reaper.sweep",
		"a:b|c":          "a_b_c",
		"":               "",
	}
	for input, want := range tests {
		assert.Equal(t, want, normalizeMetricName(input), input)
	}
}

func TestFormatTags(t *testing.T) {
	t.Parallel()

	global := cloneTags(map[string]string{"env": "prod", " service ": " worker "})
	local := map[string]string{"result": " success ", "": "ignored", "env": "stage", "class": "a,b"}

	assert.Equal(t, "|#class:a_b,env:stage,result:success,service:worker", formatTags(global, local))
	assert.Empty(t, formatTags(nil, nil))
}

func TestClient_BatchesLinesIntoOnePacket(t *testing.T) {
	t.Parallel()
	srv := listenUDP(t)

	c, err := NewClient(Config{
		Enabled:       true,
		Address:       srv.LocalAddr().String(),
		Prefix:        ".cyano.",
		GlobalTags:    map[string]string{"env": "test"},
		FlushInterval: time.Hour,
	})
	require.NoError(t, err)
	defer c.Close()
	require.True(t, c.Enabled())

	c.Count("batch.job.transition", 1, map[string]string{"result": "success"})
	c.Gauge("batch.queue.depth", 4, nil)
	c.Timing("batch.fetch.duration", 1500*time.Microsecond, nil)
	c.Flush()

	lines := strings.Split(readPacket(t, srv), "\n")
	assert.Equal(t, []string{
		"cyano.batch.job.transition:1|c|#env:test,result:success",
		"cyano.batch.queue.depth:4|g|#env:test",
		"cyano.batch.fetch.duration:1.5|ms|#env:test",
	}, lines)
}

func TestClient_FlushesWhenPacketFull(t *testing.T) {
	t.Parallel()
	srv := listenUDP(t)

	c, err := NewClient(Config{
		Enabled:       true,
		Address:       srv.LocalAddr().String(),
		MaxPacketSize: 32,
		FlushInterval: time.Hour,
	})
	require.NoError(t, err)
	defer c.Close()

	c.Count("first.metric.name", 1, nil)  // 21 bytes
	c.Count("second.metric.name", 1, nil) // would overflow, first is sent
	assert.Equal(t, "first.metric.name:1|c", readPacket(t, srv))

	c.Flush()
	assert.Equal(t, "second.metric.name:1|c", readPacket(t, srv))
}

func TestClient_FlushesOnInterval(t *testing.T) {
	t.Parallel()
	srv := listenUDP(t)

	c, err := NewClient(Config{
		Enabled:       true,
		Address:       srv.LocalAddr().String(),
		FlushInterval: 20 * time.Millisecond,
	})
	require.NoError(t, err)
	defer c.Close()

	c.Count("janitor.sweep", 1, nil)
	assert.Equal(t, "janitor.sweep:1|c", readPacket(t, srv))
}

func TestClient_CloseFlushesAndDisables(t *testing.T) {
	t.Parallel()
	srv := listenUDP(t)

	c, err := NewClient(Config{Enabled: true, Address: srv.LocalAddr().String(), FlushInterval: time.Hour})
	require.NoError(t, err)

	c.Count("reaper.sweep", 2, nil)
	require.NoError(t, c.Close())
	assert.Equal(t, "reaper.sweep:2|c", readPacket(t, srv))

	assert.False(t, c.Enabled())
	require.NoError(t, c.Close())
	c.Count("after.close", 1, nil)
}

func TestClient_DisabledAndNil(t *testing.T) {
	t.Parallel()

	c, err := NewClient(Config{Enabled: true, Address: "   "})
	require.NoError(t, err)
	assert.False(t, c.Enabled())
	c.Count("dropped", 1, nil)

	var nilClient *Client
	assert.False(t, nilClient.Enabled())
	nilClient.Count("dropped", 1, nil)
	nilClient.Flush()
	require.NoError(t, nilClient.Close())
}

func TestNewClient_DialError(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{Enabled: true, Address: "bad address"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "statsd dial")
}

type captureSink struct {
	mu   sync.Mutex
	tags []map[string]string
}

func (s *captureSink) record(tags map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tags = append(s.tags, tags)
}

func (s *captureSink) Count(_ string, _ int64, tags map[string]string)           { s.record(tags) }
func (s *captureSink) Gauge(_ string, _ float64, tags map[string]string)         { s.record(tags) }
func (s *captureSink) Timing(_ string, _ time.Duration, tags map[string]string) { s.record(tags) }

func TestTagged(t *testing.T) {
	t.Parallel()

	assert.Nil(t, Tagged(nil, map[string]string{"service": "worker"}))

	inner := &captureSink{}
	sink := Tagged(inner, map[string]string{"service": "worker", "result": "default"})
	sink.Count("x", 1, map[string]string{"result": "error"})
	sink.Gauge("y", 1, nil)
	sink.Timing("z", time.Second, nil)

	require.Len(t, inner.tags, 3)
	assert.Equal(t, map[string]string{"service": "worker", "result": "error"}, inner.tags[0])
	assert.Equal(t, "worker", inner.tags[1]["service"])
	assert.Equal(t, "default", inner.tags[2]["result"])
}
