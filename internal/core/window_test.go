package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWindowStart(t *testing.T) {
	cases := []struct {
		block, blocksPerWindow, want int64
	}{
		{0, 100, 0},
		{99, 100, 0},
		{100, 100, 100},
		{250, 100, 200},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, WindowStart(c.block, c.blocksPerWindow))
	}
}

func TestWindowEnd(t *testing.T) {
	assert.Equal(t, int64(299), WindowEnd(200, 100))
}

func TestPreviousWindow(t *testing.T) {
	start, end, ok := PreviousWindow(250, 100)
	assert.True(t, ok)
	assert.Equal(t, int64(100), start)
	assert.Equal(t, int64(199), end)

	_, _, ok = PreviousWindow(50, 100)
	assert.False(t, ok, "no previous window exists yet for a block inside the first window")

	_, _, ok = PreviousWindow(100, 100)
	assert.True(t, ok, "previous window [0,99] exists relative to block 100")
}
