package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tivoli-arcade/gokart/pkg/core"
)

func TestParseCheckpoints_Valid(t *testing.T) {
	cps, err := ParseCheckpoints("[[150,300,60],[750,300,60]]")

	require.NoError(t, err)
	require.Len(t, cps, 2)
	assert.Equal(t, core.Checkpoint{ID: 1, X: 150, Y: 300, Radius: 60}, cps[0])
	assert.Equal(t, 2, cps[1].ID)
}

func TestParseCheckpoints_InvalidJSON(t *testing.T) {
	_, err := ParseCheckpoints("not valid json")
	require.Error(t, err)
}

func TestParseCheckpoints_WrongArity(t *testing.T) {
	_, err := ParseCheckpoints("[[100,200]]")
	require.Error(t, err)
}

func TestParseCheckpoints_NonPositiveRadius(t *testing.T) {
	_, err := ParseCheckpoints("[[100,200,0]]")
	require.Error(t, err)
}

func TestTrailSampling(t *testing.T) {
	tr := NewTrail(2)
	for i := 0; i < 5; i++ {
		tr.Append(core.Pose{X: float64(i), Y: float64(i * 10)})
	}

	require.Equal(t, 3, tr.Len())
	ls, err := tr.LineString()
	require.NoError(t, err)
	pts := TrailPoints(ls)
	require.Len(t, pts, 3)
	assert.Equal(t, core.Pose{X: 0, Y: 0}, pts[0])
	assert.Equal(t, core.Pose{X: 2, Y: 20}, pts[1])
	assert.Equal(t, core.Pose{X: 4, Y: 40}, pts[2])
	wkt, err := tr.WKT()
	require.NoError(t, err)
	assert.Equal(t, "LINESTRING(0 0,2 20,4 40)", wkt)
}

func TestTrailTooShortIsEmpty(t *testing.T) {
	tr := NewTrail(1)
	tr.Append(core.Pose{X: 1, Y: 1})

	ls, err := tr.LineString()
	require.NoError(t, err)
	assert.True(t, ls.IsEmpty())
	assert.Nil(t, TrailPoints(ls))

	tr.Reset()
	assert.Equal(t, 0, tr.Len())
}

func TestTrailStationaryKartIsInvalid(t *testing.T) {
	tr := NewTrail(1)
	for i := 0; i < 3; i++ {
		tr.Append(core.Pose{X: 5, Y: 5})
	}

	_, err := tr.LineString()
	require.Error(t, err)

	wkt, err := tr.WKT()
	assert.Error(t, err)
	assert.Equal(t, "LINESTRING EMPTY", wkt)
}
