package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFake_NowAndAdvance(t *testing.T) {
	c := Fake(epoch)
	assert.True(t, c.Now().Equal(epoch))

	c.Advance(1500 * time.Millisecond)
	assert.True(t, c.Now().Equal(epoch.Add(1500*time.Millisecond)))
}

func TestFake_Set(t *testing.T) {
	c := Fake(epoch)
	later := epoch.Add(3 * time.Hour)
	c.Set(later)
	assert.True(t, c.Now().Equal(later))
}

func TestFake_AfterFuncFiresAtDeadline(t *testing.T) {
	c := Fake(epoch)
	fired := 0
	c.AfterFunc(2*time.Second, func() { fired++ })

	c.Advance(time.Second)
	assert.Equal(t, 0, fired)

	c.Advance(time.Second)
	assert.Equal(t, 1, fired)

	c.Advance(10 * time.Second)
	assert.Equal(t, 1, fired, "one-shot timer must not fire twice")
}

func TestFake_AfterFuncOrder(t *testing.T) {
	c := Fake(epoch)
	var order []string
	c.AfterFunc(3*time.Second, func() { order = append(order, "late") })
	c.AfterFunc(time.Second, func() { order = append(order, "early") })

	c.Advance(5 * time.Second)
	assert.Equal(t, []string{"early", "late"}, order)
}

func TestFake_AfterFuncStop(t *testing.T) {
	c := Fake(epoch)
	fired := false
	timer := c.AfterFunc(time.Second, func() { fired = true })

	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())

	c.Advance(2 * time.Second)
	assert.False(t, fired)
	assert.Equal(t, 0, c.Pending())
}

func TestFake_AfterFuncNonPositive(t *testing.T) {
	c := Fake(epoch)
	fired := false
	timer := c.AfterFunc(0, func() { fired = true })
	assert.True(t, fired)
	assert.False(t, timer.Stop())
}

func TestFake_Ticker(t *testing.T) {
	c := Fake(epoch)
	ticker := c.NewTicker(time.Second)
	defer ticker.Stop()

	c.Advance(time.Second)
	select {
	case at := <-ticker.C:
		assert.True(t, at.Equal(epoch.Add(time.Second)))
	default:
		t.Fatal("ticker did not fire")
	}

	// Buffer of one: several intervals collapse into a single pending tick.
	c.Advance(5 * time.Second)
	require.Len(t, ticker.C, 1)
	<-ticker.C

	ticker.Stop()
	c.Advance(5 * time.Second)
	assert.Len(t, ticker.C, 0)
}

func TestFake_TickerPanicsOnZero(t *testing.T) {
	c := Fake(epoch)
	assert.Panics(t, func() { c.NewTicker(0) })
}

func TestFake_WaitForTimers(t *testing.T) {
	c := Fake(epoch)
	done := make(chan struct{})
	go func() {
		c.AfterFunc(time.Second, func() {})
		close(done)
	}()

	c.WaitForTimers(1)
	<-done
	assert.Equal(t, 1, c.Pending())
}

func TestReal_Now(t *testing.T) {
	assert.False(t, Real().Now().IsZero())
}
