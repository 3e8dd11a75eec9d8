package entities

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTid_Valid(t *testing.T) {
	tests := []struct {
		name     string
		tid      Tid
		expected bool
	}{
		{name: "zero is invalid", tid: 0, expected: false},
		{name: "negative is invalid", tid: -5, expected: false},
		{name: "one is valid", tid: 1, expected: true},
		{name: "max is valid", tid: MaxTid, expected: true},
		{name: "above max is invalid", tid: MaxTid + 1, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.tid.Valid())
		})
	}
}

func TestTid_Base36(t *testing.T) {
	tid := Tid(1735941183123)

	assert.Equal(t, "M5HAK5G3", tid.Base36(false))
	assert.Equal(t, "M5HA-K5G3", tid.Base36(true))
	assert.Equal(t, "00000001", Tid(1).Base36(false))
	assert.Equal(t, "0000-0001", Tid(1).Base36(true))
	assert.Equal(t, "8RC4KBDVSS1R", MaxTid.Base36(false))
}

func TestParseTid(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected Tid
		wantErr  bool
	}{
		{name: "base36 with dash", input: "M5HA-K5G3", expected: 1735941183123},
		{name: "base36 lower case with dot", input: "m5ha.k5g3", expected: 1735941183123},
		{name: "long digit string is base10", input: "1735941183123", expected: 1735941183123},
		{name: "short digit string is base10", input: "1234567", expected: 1234567},
		{name: "eight digits read as base36", input: "12345678", expected: 82906087076},
		{name: "empty", input: "", wantErr: true},
		{name: "zero", input: "0", wantErr: true},
		{name: "garbage", input: "!!??", wantErr: true},
		{name: "too large", input: "ZZZZZZZZZZZZZ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTid(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTid)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestTid_Time(t *testing.T) {
	ts := time.Date(2025, 1, 3, 21, 53, 3, 123_000_000, time.UTC)

	tid := TidFromTime(ts)

	assert.True(t, tid.Valid())
	assert.True(t, ts.Equal(tid.Time()))
}

func TestTid_UUID(t *testing.T) {
	tid := Tid(1735941183123)

	u := tid.UUID(0x0123456789ab)

	assert.Equal(t, uuid.Version(1), u.Version())
	assert.Equal(t, uuid.RFC4122, u.Variant())

	back, err := TidFromUUID(u)
	require.NoError(t, err)
	assert.Equal(t, tid, back)

	t.Run("different nodes give different uuids", func(t *testing.T) {
		assert.NotEqual(t, tid.UUID(1), tid.UUID(2))
	})

	t.Run("non v1 uuid is rejected", func(t *testing.T) {
		_, err := TidFromUUID(uuid.New())
		assert.ErrorIs(t, err, ErrInvalidTid)
	})
}
