package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tivoli-arcade/gokart/pkg/core"
)

func TestPoseFromString(t *testing.T) {
	tests := []struct {
		in   string
		want core.Pose
	}{
		{"440,90", core.Pose{X: 440, Y: 90}},
		{"440,90,270", core.Pose{X: 440, Y: 90, Rotation: 270}},
		{"-1.5, 2.25 ,-90", core.Pose{X: -1.5, Y: 2.25, Rotation: -90}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := PoseFromString(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPoseFromStringInvalid(t *testing.T) {
	for _, in := range []string{"", "1", "a,2", "1,b", "1,2,c", "1,2,3,4", "NaN,1", "1,Inf"} {
		_, err := PoseFromString(in)
		assert.ErrorIs(t, err, ErrInvalidCoordinates, in)
	}
}

func TestXY(t *testing.T) {
	xy := XY(core.Pose{X: 12.5, Y: -3, Rotation: 45})
	assert.Equal(t, 12.5, xy.X)
	assert.Equal(t, -3.0, xy.Y)
}

func TestInCircle(t *testing.T) {
	cp := core.Checkpoint{ID: 1, X: 150, Y: 300, Radius: 60}

	assert.True(t, InCircle(XY(core.Pose{X: 150, Y: 300}), cp))
	assert.True(t, InCircle(XY(core.Pose{X: 210, Y: 300}), cp), "edge is inside")
	assert.False(t, InCircle(XY(core.Pose{X: 210.01, Y: 300}), cp))
	assert.False(t, InCircle(XY(core.Pose{X: 200, Y: 350}), cp))
}

func TestRectEnvelope(t *testing.T) {
	env, err := RectEnvelope(core.Rect{X: 420, Y: 40, W: 40, H: 100})
	require.NoError(t, err)

	assert.True(t, env.Contains(XY(core.Pose{X: 440, Y: 90})))
	assert.True(t, env.Contains(XY(core.Pose{X: 420, Y: 40})))
	assert.True(t, env.Contains(XY(core.Pose{X: 460, Y: 140})))
	assert.False(t, env.Contains(XY(core.Pose{X: 461, Y: 90})))
	assert.False(t, env.Contains(XY(core.Pose{X: 440, Y: 39})))
	assert.Equal(t, 40.0, env.Width())
	assert.Equal(t, 100.0, env.Height())
}

func TestRectEnvelopeRejectsNonFinite(t *testing.T) {
	_, err := RectEnvelope(core.Rect{X: math.NaN(), Y: 0, W: 10, H: 10})
	assert.Error(t, err)
	_, err = RectEnvelope(core.Rect{X: 0, Y: 0, W: math.Inf(1), H: 10})
	assert.Error(t, err)
}
