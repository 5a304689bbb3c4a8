package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSystem_TracksWallClock(t *testing.T) {
	before := uint64(time.Now().UnixMilli())
	got := System{}.NowMS()
	after := uint64(time.Now().UnixMilli())

	assert.GreaterOrEqual(t, got, before)
	assert.LessOrEqual(t, got, after)
}

func TestFake_AdvancesOnlyWhenTold(t *testing.T) {
	clk := NewFake(100)
	assert.Equal(t, uint64(100), clk.NowMS())
	assert.Equal(t, uint64(100), clk.NowMS())

	clk.Advance(50)
	assert.Equal(t, uint64(150), clk.NowMS())
}

func TestFake_SetMayRegress(t *testing.T) {
	clk := NewFake(1_000)
	clk.Set(10)
	assert.Equal(t, uint64(10), clk.NowMS())
}
