package drm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRefreshMillihertz(t *testing.T) {
	tests := []struct {
		name  string
		mode  ModeInfo
		want  uint64
	}{
		{
			name: "1080p60",
			mode: ModeInfo{Clock: 148500, HTotal: 2200, VTotal: 1125},
			want: 60000,
		},
		{
			name: "1080p50",
			mode: ModeInfo{Clock: 148500, HTotal: 2640, VTotal: 1125},
			want: 50000,
		},
		{
			name: "720p60",
			mode: ModeInfo{Clock: 74250, HTotal: 1650, VTotal: 750},
			want: 60000,
		},
		{
			name: "zero timings",
			mode: ModeInfo{Clock: 148500},
			want: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.mode.RefreshMillihertz())
		})
	}
}

func TestModeName(t *testing.T) {
	var m ModeInfo
	copy(m.RawName[:], "1920x1080")
	assert.Equal(t, "1920x1080", m.Name())

	var full ModeInfo
	for i := range full.RawName {
		full.RawName[i] = 'x'
	}
	assert.Len(t, full.Name(), 32)
}
