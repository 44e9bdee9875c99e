package modbusclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecode(t *testing.T) {
	var tests = []struct {
		name     string
		expected int
		given    []byte
	}{
		{
			name:     "8bit negative",
			expected: -28,
			given:    []byte{0xe4},
		},
		{
			name:     "16bit negative",
			expected: -28,
			given:    []byte{0xff, 0xe4},
		},
		{
			name:     "16bit postive",
			expected: 31,
			given:    []byte{0x00, 0x1f},
		},
		{
			name:     "32bit negative",
			expected: -29,
			given:    []byte{0xff, 0xff, 0xff, 0xe3},
		},
		{
			name:     "unsupported length",
			expected: 0,
			given:    []byte{0x01, 0x02, 0x03},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Decode(tt.given))
		})
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	for _, v := range []int{-28, 0, 35, 655} {
		u := Encode(v)
		assert.Equal(t, v, Decode([]byte{byte(u >> 8), byte(u)}))
	}
}

func TestCoilValue(t *testing.T) {
	assert.Equal(t, WriteCoilValueOn, CoilValue(true))
	assert.Equal(t, WriteCoilValueOff, CoilValue(false))
}
