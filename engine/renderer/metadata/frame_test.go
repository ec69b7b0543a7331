package metadata

import (
	"testing"

	"github.com/spaghettifunk/framepace/engine/core"
)

func TestClampFrameTime(t *testing.T) {
	tests := []struct {
		name    string
		dt, max float64
		want    float64
	}{
		{"within", 0.016, 0.0333, 0.016},
		{"stall", 2.5, 0.0333, 0.0333},
		{"negative", -1, 0.0333, 0},
		{"default max", 1, 0, core.DefaultMaxFrameTime},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClampFrameTime(tt.dt, tt.max); got != tt.want {
				t.Errorf("ClampFrameTime(%v, %v) = %v, want %v", tt.dt, tt.max, got, tt.want)
			}
		})
	}
}

func TestNewCameraIsIdentity(t *testing.T) {
	c := NewCamera()
	for i, v := range c.View.Data {
		want := float32(0)
		if i%5 == 0 {
			want = 1
		}
		if v != want || c.Projection.Data[i] != want {
			t.Fatalf("element %d: view %v projection %v", i, v, c.Projection.Data[i])
		}
	}
}
