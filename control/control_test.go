package control_test

import (
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-netio/control"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := control.DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, -1, cfg.Engine.CPU)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestParseConfig(t *testing.T) {
	cfg, err := control.ParseConfig(`
[engine]
recv_batch_size = 8
resolve_timeout = "250ms"

[logging]
level = "debug"

[metrics]
enabled = true
listen = ":9100"
`)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Engine.RecvBatchSize)
	assert.Equal(t, 250*time.Millisecond, cfg.Engine.ResolveTimeout)
	assert.Equal(t, 2048, cfg.Engine.MaxPacketSize, "unset keys keep defaults")
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestParseConfigRejects(t *testing.T) {
	_, err := control.ParseConfig("[engine]\nrecv_batch_sise = 8\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine.recv_batch_sise")

	_, err = control.ParseConfig("[engine]\nrecv_batch_size = 0\nmax_packet_size = 1\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recv_batch_size")
	assert.Contains(t, err.Error(), "max_packet_size")
}

func TestStoreReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "netio.toml")
	require.NoError(t, os.WriteFile(path, []byte("[engine]\nrecv_batch_size = 4\n"), 0o600))

	cfg, err := control.LoadConfig(path)
	require.NoError(t, err)
	store := control.NewStore(cfg, path)

	var seen []int
	store.OnReload(func(old, cur control.Config) {
		seen = append(seen, old.Engine.RecvBatchSize, cur.Engine.RecvBatchSize)
	})

	require.NoError(t, os.WriteFile(path, []byte("[engine]\nrecv_batch_size = 16\n"), 0o600))
	require.NoError(t, store.Reload())
	assert.Equal(t, []int{4, 16}, seen)
	assert.Equal(t, 16, store.Snapshot().Engine.RecvBatchSize)

	require.NoError(t, os.WriteFile(path, []byte("[engine]\nrecv_batch_size = -1\n"), 0o600))
	assert.Error(t, store.Reload())
	assert.Equal(t, 16, store.Snapshot().Engine.RecvBatchSize)
}

func TestMetrics(t *testing.T) {
	var nilMetrics *control.Metrics
	assert.NotPanics(t, func() {
		nilMetrics.TaskDone("resolve", true)
		nilMetrics.SetPorts(1, 2)
		nilMetrics.PacketDropped("no_buffer")
	})

	m := control.NewMetrics()
	m.TaskDone("add_udp_receiver", true)
	m.TaskDone("add_udp_receiver", false)
	m.TaskDone("add_udp_receiver", true)
	m.SetPorts(3, 1)
	m.PacketDropped("no_buffer")
	m.ResolveObserved(5 * time.Millisecond)

	n, err := testutil.GatherAndCount(m.Registry(), "netio_tasks_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "one series per result")

	n, err = testutil.GatherAndCount(m.Registry(), "netio_packets_dropped_total", "netio_resolve_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMetricsHandler(t *testing.T) {
	m := control.NewMetrics()
	m.TaskDone("resolve_endpoint_address", true)
	m.SetPorts(2, 0)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	text := string(body)
	assert.True(t, strings.Contains(text, `netio_tasks_total{kind="resolve_endpoint_address",result="success"} 1`), text)
	assert.Contains(t, text, "netio_ports_open 2")
}

func TestDebugProbes(t *testing.T) {
	dp := control.NewDebugProbes()
	control.RegisterPlatformProbes(dp)
	dp.RegisterProbe("netio.num_ports", func() any { return 3 })

	assert.Contains(t, dp.Names(), "platform.cpus")
	state := dp.DumpState()
	assert.Equal(t, 3, state["netio.num_ports"])

	js, err := dp.DumpJSON()
	require.NoError(t, err)
	assert.Contains(t, string(js), `"netio.num_ports": 3`)

	dp.UnregisterProbe("netio.")
	assert.NotContains(t, dp.Names(), "netio.num_ports")
}
