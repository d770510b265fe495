package logging_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/joeycumines/logiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-netio/internal/logging"
)

func TestNewWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	opts := logging.DefaultOptions()
	opts.Writer = &buf
	opts.TimeField = ""
	log := logging.New(opts)

	log.Info().Str("port", "udp_receiver").Int("fd", 7).Log("port opened")
	log.Debug().Log("not written")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec))
	assert.Equal(t, "port opened", rec["msg"])
	assert.Equal(t, "udp_receiver", rec["port"])
	assert.EqualValues(t, 7, rec["fd"])
	assert.Equal(t, "info", rec["lvl"])
}

func TestDiscard(t *testing.T) {
	log := logging.Discard()
	assert.NotPanics(t, func() { log.Err().Str("k", "v").Log("dropped") })
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]logiface.Level{
		"debug":   logiface.LevelDebug,
		"WARN":    logiface.LevelWarning,
		"error":   logiface.LevelError,
		"":        logiface.LevelInformational,
		"off":     logiface.LevelDisabled,
		"notice":  logiface.LevelNotice,
		" trace ": logiface.LevelTrace,
	} {
		got, err := logging.ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := logging.ParseLevel("loud")
	assert.Error(t, err)
}
