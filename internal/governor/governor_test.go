package governor

import "testing"

func TestApplySmallRequestSucceeds(t *testing.T) {
	adjusted, err := Apply(4)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if adjusted <= 0 {
		t.Errorf("adjusted = %d, want > 0", adjusted)
	}
	if adjusted > 4 {
		t.Errorf("adjusted = %d, must never exceed the request", adjusted)
	}
}

func TestApplyNeverReturnsZeroOrNegative(t *testing.T) {
	// An absurdly large request should be clamped down rather than erroring.
	adjusted, err := Apply(1 << 30)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if adjusted < 1 {
		t.Errorf("adjusted = %d, want >= 1", adjusted)
	}
}
