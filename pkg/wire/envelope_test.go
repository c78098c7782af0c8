package wire

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeTemperature(t *testing.T) {
	data, err := Encode("temp", []byte("23.5"), MaxPayloadLen)
	require.NoError(t, err)

	want := []byte{
		0xa2,                           // map(2)
		0x00, 0x64, 't', 'e', 'm', 'p', // 0: "temp"
		0x01, 0x64, '2', '3', '.', '5', // 1: "23.5"
	}
	assert.Equal(t, want, data)

	env, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "temp", env.Type)
	assert.Equal(t, []byte("23.5"), env.Payload)
	assert.True(t, env.Text)
	assert.Equal(t, `{0:"temp",1:"23.5"}`, env.String())
}

func TestEncodeDeterministic(t *testing.T) {
	a, err := Encode("humidity", []byte("41%"), MaxPayloadLen)
	require.NoError(t, err)
	b, err := Encode("humidity", []byte("41%"), MaxPayloadLen)
	require.NoError(t, err)

	assert.True(t, bytes.Equal(a, b), "identical inputs must encode identically")
}

func TestEncodeBinaryPayload(t *testing.T) {
	raw := []byte{0xff, 0x00, 0xfe}

	data, err := Encode("accel", raw, MaxPayloadLen)
	require.NoError(t, err)

	env, err := Decode(data)
	require.NoError(t, err)
	assert.False(t, env.Text)
	assert.Equal(t, raw, env.Payload)
}

func TestEncodedSizeMatchesEncode(t *testing.T) {
	tests := []struct {
		name       string
		deviceType string
		payload    []byte
	}{
		{"empty payload", "temp", nil},
		{"short", "temp", []byte("23.5")},
		{"23 bytes", "t", bytes.Repeat([]byte("a"), 23)},
		{"24 bytes", "t", bytes.Repeat([]byte("a"), 24)},
		{"two byte length", "light", bytes.Repeat([]byte("x"), 200)},
		{"max label", strings.Repeat("d", MaxDeviceTypeLen), []byte("1")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Encode(tt.deviceType, tt.payload, 1024)
			require.NoError(t, err)
			assert.Equal(t, len(data), EncodedSize(tt.deviceType, tt.payload))
		})
	}
}

func TestEncodeTooLarge(t *testing.T) {
	payload := bytes.Repeat([]byte("9"), MaxPayloadLen)

	data, err := Encode("temp", payload, MaxPayloadLen)
	assert.Nil(t, data)
	assert.True(t, errors.Is(err, ErrPayloadTooLarge))

	// Boundary: exactly maxLen fits, one byte more does not.
	fit := EncodedSize("temp", []byte("23.5"))
	_, err = Encode("temp", []byte("23.5"), fit)
	assert.NoError(t, err)
	data, err = Encode("temp", []byte("23.5"), fit-1)
	assert.Nil(t, data)
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestEncodeInvalidDeviceType(t *testing.T) {
	_, err := Encode("", []byte("1"), MaxPayloadLen)
	assert.ErrorIs(t, err, ErrInvalidDeviceType)

	_, err = Encode(strings.Repeat("x", MaxDeviceTypeLen+1), []byte("1"), MaxPayloadLen)
	assert.ErrorIs(t, err, ErrInvalidDeviceType)
}

func TestEncodeDefaultMaxLen(t *testing.T) {
	_, err := Encode("temp", bytes.Repeat([]byte("9"), 300), 0)
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"garbage", []byte{0xff, 0x01}},
		{"missing type", mustMarshal(t, map[int]any{KeyPayload: "1"})},
		{"missing payload", mustMarshal(t, map[int]any{KeyDeviceType: "temp"})},
		{"integer payload", mustMarshal(t, map[int]any{KeyDeviceType: "temp", KeyPayload: 5})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			assert.ErrorIs(t, err, ErrMalformedEnvelope)
		})
	}
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	data, err := marshal(v)
	require.NoError(t, err)
	return data
}
