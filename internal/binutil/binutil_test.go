package binutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimeToDOSRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
	}{
		{"epoch", time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"mid", time.Date(2023, 6, 15, 13, 42, 30, 0, time.UTC)},
		{"year max", time.Date(2107, 12, 31, 23, 59, 58, 0, time.UTC)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			packed := TimeToDOS(tc.in)
			got := DOSToTime(packed)
			assert.Equal(t, tc.in, got)
		})
	}
}

func TestTimeToDOSBeforeEpochClamps(t *testing.T) {
	packed := TimeToDOS(time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, DOSTimeMin, packed)
}

func TestReadWriteBufRoundTrip(t *testing.T) {
	buf := make([]byte, 15)
	w := WriteBuf(buf)
	w.Uint8(0x12)
	w.Uint16(0x3456)
	w.Uint32(0x789abcde)
	w.Uint64(0x0102030405060708)

	r := ReadBuf(buf)
	assert.Equal(t, uint8(0x12), r.Uint8())
	assert.Equal(t, uint16(0x3456), r.Uint16())
	assert.Equal(t, uint32(0x789abcde), r.Uint32())
	assert.Equal(t, uint64(0x0102030405060708), r.Uint64())
	assert.Equal(t, 0, r.Len())
}
