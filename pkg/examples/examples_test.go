package examples

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sapi-coap/sapi-go/pkg/sensor"
)

func TestNew(t *testing.T) {
	for _, kind := range Kinds() {
		t.Run(kind, func(t *testing.T) {
			d, err := New(kind, 1)
			require.NoError(t, err)
			assert.Equal(t, Kind(kind), d.Kind())
		})
	}

	_, err := New("pressure", 1)
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestSimulatedImplementsCapabilities(t *testing.T) {
	var d any = NewTemperature(1)

	_, ok := d.(sensor.Driver)
	assert.True(t, ok)
	_, ok = d.(sensor.Initializer)
	assert.True(t, ok)
	_, ok = d.(sensor.ConfigReader)
	assert.True(t, ok)
	_, ok = d.(sensor.ConfigWriter)
	assert.True(t, ok)
}

func TestSimulatedReadStaysInRange(t *testing.T) {
	ctx := context.Background()
	d := NewHumidity(42)
	require.NoError(t, d.Init(ctx))

	first, err := d.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "45.0", string(first))

	for range 500 {
		data, err := d.Read(ctx)
		require.NoError(t, err)
		v, err := strconv.ParseFloat(string(data), 64)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 100.0)
	}
}

func TestSimulatedDeterministic(t *testing.T) {
	ctx := context.Background()
	a, b := NewTemperature(7), NewTemperature(7)

	for range 20 {
		va, err := a.Read(ctx)
		require.NoError(t, err)
		vb, err := b.Read(ctx)
		require.NoError(t, err)
		assert.Equal(t, va, vb)
	}
}

func TestSimulatedSetClamps(t *testing.T) {
	d := NewLight(1)
	d.Set(5000)
	assert.Equal(t, 2000.0, d.Value())
	d.Set(-1)
	assert.Equal(t, 0.0, d.Value())
}

func TestSimulatedConfig(t *testing.T) {
	ctx := context.Background()
	d := NewTemperature(1)
	require.NoError(t, d.Init(ctx))

	cfg, err := d.ReadConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, "interval=0;offset=0;precision=1;unit=C", string(cfg))

	require.NoError(t, d.WriteConfig(ctx, []byte("offset=-1.5; precision=2")))
	data, err := d.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "19.50", string(data))

	cfg, err = d.ReadConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, "interval=0;offset=-1.5;precision=2;unit=C", string(cfg))
}

func TestSimulatedConfigRejectsAtomically(t *testing.T) {
	ctx := context.Background()
	d := NewTemperature(1)

	tests := []string{
		"offset=abc",
		"precision=9",
		"colour=blue",
		"offset",
		"precision=2;offset=NaN",
		"interval=-1",
		"interval=30s",
	}
	for _, in := range tests {
		t.Run(in, func(t *testing.T) {
			err := d.WriteConfig(ctx, []byte(in))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}

	cfg, err := d.ReadConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, "interval=0;offset=0;precision=1;unit=C", string(cfg))
}

func TestSimulatedConfigInterval(t *testing.T) {
	ctx := context.Background()
	d := NewHumidity(1)

	require.NoError(t, d.WriteConfig(ctx, []byte("interval=30")))
	assert.Equal(t, 30, d.Interval())

	cfg, err := d.ReadConfig(ctx)
	require.NoError(t, err)
	pairs, err := ParseConfig(string(cfg))
	require.NoError(t, err)
	assert.Equal(t, "30", pairs[KeyInterval])
}

func TestParseFormatConfig(t *testing.T) {
	pairs, err := ParseConfig(" b = 2 ;a=1;;")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, pairs)
	assert.Equal(t, "a=1;b=2", FormatConfig(pairs))

	pairs, err = ParseConfig("")
	require.NoError(t, err)
	assert.Empty(t, pairs)
}

func TestSimulatedWithRegistry(t *testing.T) {
	ctx := context.Background()
	reg := sensor.NewRegistry(sensor.MaxSensors)

	for i, kind := range Kinds() {
		d, err := New(kind, uint64(i))
		require.NoError(t, err)
		_, err = reg.Register(sensor.Registration{DeviceType: kind, Driver: d, Frequency: 30})
		require.NoError(t, err)
	}
	require.NoError(t, reg.Init(ctx))

	id, err := reg.LookupByURI("temp")
	require.NoError(t, err)
	entry, err := reg.Get(id)
	require.NoError(t, err)

	data, err := entry.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "21.0", string(data))
}
