package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/plgd-dev/go-coap/v3/message/codes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sapi-coap/sapi-go/pkg/log"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func u32(v uint32) *uint32 { return &v }
func u16(v uint16) *uint16 { return &v }

func sampleEvents() []log.Event {
	return []log.Event{
		{
			Timestamp: base,
			LinkID:    "aaaaaaaa-1111",
			Layer:     log.LayerLink,
			Category:  log.CategoryState,
			Transport: log.TransportSerial,
			Remote:    "/dev/ttyACM0",
			StateChange: &log.StateChangeEvent{
				Entity:   log.StateEntityLink,
				NewState: "UP",
			},
		},
		{
			Timestamp: base.Add(time.Second),
			LinkID:    "bbbbbbbb-2222",
			Direction: log.DirectionIn,
			Layer:     log.LayerCoAP,
			Category:  log.CategoryMessage,
			Transport: log.TransportUDP,
			Remote:    "10.0.0.5:5683",
			Message: &log.MessageEvent{
				Type:      log.MessageTypeRequest,
				MessageID: 17,
				Code:      uint8(codes.GET),
				Token:     []byte{0xAB},
				Path:      "/temp",
				Observe:   u32(0),
			},
		},
		{
			Timestamp:  base.Add(2 * time.Second),
			LinkID:     "bbbbbbbb-2222",
			Direction:  log.DirectionOut,
			Layer:      log.LayerCoAP,
			Category:   log.CategoryMessage,
			Transport:  log.TransportUDP,
			Remote:     "10.0.0.5:5683",
			DeviceType: "temp",
			Message: &log.MessageEvent{
				Type:          log.MessageTypeResponse,
				MessageID:     17,
				Code:          uint8(codes.Content),
				ContentFormat: u16(60),
				Payload:       []byte{0xA1, 0x61, 0x76, 0x01}, // {"v": 1}
			},
		},
		{
			Timestamp:  base.Add(3 * time.Second),
			Layer:      log.LayerService,
			Category:   log.CategoryObserve,
			DeviceType: "temp",
			Observe:    &log.ObserveEvent{SensorID: 0, ObserverID: 1, Registered: true, Sequence: 1},
		},
		{
			Timestamp: base.Add(4 * time.Second),
			LinkID:    "aaaaaaaa-1111",
			Layer:     log.LayerLink,
			Category:  log.CategoryError,
			Transport: log.TransportSerial,
			Error:     &log.ErrorEventData{Layer: log.LayerLink, Message: "frame check sequence mismatch", Context: "read frame"},
		},
	}
}

func writeLog(t *testing.T, events []log.Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.slog")
	logger, err := log.NewFileLogger(path)
	require.NoError(t, err)
	for _, e := range events {
		logger.Log(e)
	}
	require.NoError(t, logger.Close())
	return path
}

func TestRunView(t *testing.T) {
	path := writeLog(t, sampleEvents())

	var out bytes.Buffer
	require.NoError(t, RunView(path, log.Filter{}, &out))

	s := out.String()
	assert.Contains(t, s, "[link:bbbbbbbb] IN  UDP COAP REQUEST 10.0.0.5:5683")
	assert.Contains(t, s, "Path: /temp")
	assert.Contains(t, s, "Observe: 0")
	assert.Contains(t, s, "Code: 2.05 Content")
	assert.Contains(t, s, `{"v": 1}`)
	assert.Contains(t, s, "Sensor 0 observer 1 registered (seq 1)")
	assert.Contains(t, s, "Context: read frame")
	assert.Contains(t, s, "-> UP")
}

func TestRunViewFiltered(t *testing.T) {
	path := writeLog(t, sampleEvents())

	filter, err := FilterOptions{Transport: "serial"}.BuildFilter()
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, RunView(path, filter, &out))
	assert.NotContains(t, out.String(), "REQUEST")
	assert.Contains(t, out.String(), "SERIAL")
}

func TestBuildFilter(t *testing.T) {
	f, err := FilterOptions{
		Layer:     "coap",
		Direction: "OUT",
		Category:  "message",
		TimeStart: "2026-03-01T12:00:00Z",
	}.BuildFilter()
	require.NoError(t, err)
	require.NotNil(t, f.Layer)
	assert.Equal(t, log.LayerCoAP, *f.Layer)
	assert.Equal(t, log.DirectionOut, *f.Direction)
	assert.True(t, base.Equal(*f.TimeStart))

	bad := []FilterOptions{
		{Layer: "wire"},
		{Direction: "sideways"},
		{Category: "control"},
		{Transport: "tcp"},
		{TimeEnd: "yesterday"},
	}
	for _, o := range bad {
		_, err := o.BuildFilter()
		assert.Error(t, err, "%+v", o)
	}
}

func TestRunFilter(t *testing.T) {
	path := writeLog(t, sampleEvents())
	out := filepath.Join(t.TempDir(), "filtered.slog")

	filter, err := FilterOptions{DeviceType: "temp"}.BuildFilter()
	require.NoError(t, err)

	n, err := RunFilter(path, out, filter)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	r, err := log.NewReader(out)
	require.NoError(t, err)
	defer r.Close()
	stats, err := CollectStats(r)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalEvents)
	assert.Equal(t, 2, stats.Sensors["temp"])
}

func TestCollectStats(t *testing.T) {
	path := writeLog(t, sampleEvents())
	r, err := log.NewReader(path)
	require.NoError(t, err)
	defer r.Close()

	stats, err := CollectStats(r)
	require.NoError(t, err)

	assert.Equal(t, 5, stats.TotalEvents)
	assert.Equal(t, 2, stats.EventsByLayer[log.LayerCoAP])
	assert.Equal(t, 1, stats.MessagesByType[log.MessageTypeRequest])
	assert.Equal(t, 1, stats.Registrations)
	assert.Equal(t, 1, stats.Errors)
	assert.Len(t, stats.Links, 2)
	assert.Equal(t, log.TransportSerial, stats.Links["aaaaaaaa-1111"].Transport)
	assert.True(t, base.Equal(stats.TimeRange.Start))
	assert.True(t, base.Add(4*time.Second).Equal(stats.TimeRange.End))
}

func TestRunStats(t *testing.T) {
	path := writeLog(t, sampleEvents())

	var out bytes.Buffer
	require.NoError(t, RunStats(path, &out))

	s := out.String()
	assert.Contains(t, s, "Total Events: 5")
	assert.Contains(t, s, "Observers: 1 registered, 0 cancelled")
	assert.Contains(t, s, "Links: 2")
	assert.Contains(t, s, "Errors: 1")
}

func TestExport(t *testing.T) {
	path := writeLog(t, sampleEvents())

	t.Run("csv", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "events.csv")
		require.NoError(t, RunExport(path, "csv", out))

		data, err := os.ReadFile(out)
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		require.Len(t, lines, 6)
		assert.True(t, strings.HasPrefix(lines[0], "timestamp,link_id"))
		assert.Contains(t, lines[2], "REQUEST,17,GET,/temp,ab")
	})

	t.Run("jsonl", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "events.jsonl")
		require.NoError(t, RunExport(path, "jsonl", out))

		data, err := os.ReadFile(out)
		require.NoError(t, err)
		assert.Len(t, strings.Split(strings.TrimSpace(string(data)), "\n"), 5)
	})

	t.Run("unknown format", func(t *testing.T) {
		assert.Error(t, RunExport(path, "xml", filepath.Join(t.TempDir(), "x")))
	})
}

func TestFormatPayload(t *testing.T) {
	assert.Equal(t, `"21.5"`, formatPayload([]byte("21.5"), nil))
	assert.Equal(t, "fffe", formatPayload([]byte{0xFF, 0xFE}, nil))
	assert.Equal(t, "1", formatPayload([]byte{0x01}, u16(60)))
}

func TestCodeString(t *testing.T) {
	assert.Equal(t, "GET", codeString(uint8(codes.GET)))
	assert.Equal(t, "4.04 NotFound", codeString(uint8(codes.NotFound)))
}
