package tick

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
)

func TestSourceCountsTicks(t *testing.T) {
	mock := clock.NewMock()
	src := NewSource(mock, time.Millisecond)

	assert.Equal(t, Tick(0), src.Now())
	mock.Add(1500 * time.Microsecond)
	assert.Equal(t, Tick(1), src.Now())
	mock.Add(250 * time.Millisecond)
	assert.Equal(t, Tick(251), src.Now())
}

func TestSourceMillis(t *testing.T) {
	src := NewSource(clock.NewMock(), 10*time.Millisecond)
	assert.Equal(t, int64(120), src.Millis(12))
	assert.Equal(t, 120*time.Millisecond, src.Duration(12))
}

func TestTickSubWraps(t *testing.T) {
	start := Tick(0xFFFFFFF0)
	stop := Tick(0x00000010)
	assert.Equal(t, Tick(0x20), stop.Sub(start))
}

func TestNewSourceDefaults(t *testing.T) {
	src := NewSource(nil, 0)
	assert.NotNil(t, src.Clock())
	assert.Equal(t, int64(1), src.Millis(1))
}
