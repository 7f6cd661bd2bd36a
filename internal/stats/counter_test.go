package stats

import (
	"math"
	"testing"
)

func TestPerformanceCounterAveragesWithinWindow(t *testing.T) {
	c := NewPerformanceCounter[float64](4)

	c.Update(0, 4)
	c.Update(1, 4)
	c.Update(2, 4)
	c.Update(3, 4)

	if got := c.Average(); math.Abs(got-4) > 1e-9 {
		t.Errorf("Average() = %v, want 4", got)
	}
}

func TestPerformanceCounterAgesOutStaleCells(t *testing.T) {
	c := NewPerformanceCounter[float64](4)

	c.Update(0, 100)
	// Advance far enough that the cell at t=0 has aged out of the window.
	c.Update(10, 0)

	if got := c.Average(); got != 0 {
		t.Errorf("Average() = %v, want 0 once the old cell ages out", got)
	}
}

func TestPerformanceCounterIntegerType(t *testing.T) {
	c := NewPerformanceCounter[int64](8)
	c.Update(100, 8)
	if got := c.Average(); math.Abs(got-1) > 1e-9 {
		t.Errorf("Average() = %v, want 1", got)
	}
}
