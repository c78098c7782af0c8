package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
name: garden-node
sensors:
  - type: temp
    frequency: 30
    config: "offset=0.5"
  - type: soil
    driver: humidity
    frequency: 60
udp:
  enabled: true
  address: "127.0.0.1:5683"
serial:
  port: /dev/ttyACM0
  read_timeout: 1500ms
discovery:
  enabled: false
log:
  level: debug
  protocol_file: /tmp/sapi.log
  max_size_mb: 5
legacy:
  enabled: true
  base: arduino
`

func TestParse(t *testing.T) {
	cfg, err := Parse(strings.NewReader(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "garden-node", cfg.Name)
	require.Len(t, cfg.Sensors, 2)
	assert.Equal(t, "temp", cfg.Sensors[0].DriverKind())
	assert.Equal(t, "humidity", cfg.Sensors[1].DriverKind())
	assert.Equal(t, uint32(60), cfg.Sensors[1].Frequency)
	assert.Equal(t, "offset=0.5", cfg.Sensors[0].Config)

	assert.Equal(t, "127.0.0.1:5683", cfg.UDP.Address)
	assert.Equal(t, "/dev/ttyACM0", cfg.Serial.Port)
	assert.Equal(t, 1500*time.Millisecond, cfg.Serial.ReadTimeout)
	assert.Equal(t, 115200, cfg.Serial.BaudRate, "unset keys keep defaults")
	assert.False(t, cfg.Discovery.Enabled)

	level, err := cfg.Log.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestParseEmptyDocument(t *testing.T) {
	cfg, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, cfg.Sensors)
	assert.True(t, cfg.UDP.Enabled)
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown key", "colour: blue\n"},
		{"too many sensors", "sensors: [{type: a, driver: temp}, {type: b, driver: temp}, {type: c, driver: temp}, {type: d, driver: temp}, {type: e, driver: temp}]\n"},
		{"duplicate type", "sensors: [{type: temp}, {type: temp}]\n"},
		{"reserved type", "sensors: [{type: config, driver: temp}]\n"},
		{"slash in type", "sensors: [{type: a/b, driver: temp}]\n"},
		{"long type", "sensors: [{type: abcdefghijklmnopqrstuvwxyz, driver: temp}]\n"},
		{"unknown driver", "sensors: [{type: pressure}]\n"},
		{"bad driver config", "sensors: [{type: temp, config: novalue}]\n"},
		{"bad level", "log: {level: loud}\n"},
		{"negative rotation", "log: {max_backups: -1}\n"},
		{"no transport", "udp: {enabled: false}\n"},
		{"legacy without base", "legacy: {enabled: true, base: \"\"}\n"},
		{"not yaml", "sensors: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.yaml))
			require.Error(t, err)
			var le *LoadError
			assert.ErrorAs(t, err, &le)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "device.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "garden-node", cfg.Name)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, filepath.Join(dir, "missing.yaml"), le.File)
	assert.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("udp: {enabled: false}\n"), 0o600))
	_, err = Load(bad)
	require.ErrorAs(t, err, &le)
	assert.Equal(t, bad, le.File)
	assert.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), bad)
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	data, err := cfg.Marshal()
	require.NoError(t, err)

	back, err := Parse(strings.NewReader(string(data)))
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}

func TestProtocolLogger(t *testing.T) {
	l, err := LogConfig{}.ProtocolLogger()
	require.NoError(t, err)
	assert.Nil(t, l)

	dir := t.TempDir()

	plain, err := LogConfig{ProtocolFile: filepath.Join(dir, "plain.log")}.ProtocolLogger()
	require.NoError(t, err)
	require.NotNil(t, plain)
	require.NoError(t, plain.Close())

	rotating, err := LogConfig{ProtocolFile: filepath.Join(dir, "rot.log"), MaxSizeMB: 1}.ProtocolLogger()
	require.NoError(t, err)
	require.NotNil(t, rotating)
	require.NoError(t, rotating.Close())
}
