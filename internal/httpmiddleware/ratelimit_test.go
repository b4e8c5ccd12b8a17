package httpmiddleware

import (
	"testing"
	"time"
)

func TestIPLimiterAllow(t *testing.T) {
	l := NewIPLimiter(3, 60)
	now := time.Now()

	for i := 0; i < 3; i++ {
		if !l.allow("1.2.3.4", now) {
			t.Fatalf("request %d denied within capacity", i+1)
		}
	}
	if l.allow("1.2.3.4", now) {
		t.Error("request over capacity allowed")
	}
	if !l.allow("5.6.7.8", now) {
		t.Error("different IP sharing a bucket")
	}
	if !l.allow("1.2.3.4", now.Add(2*time.Minute)) {
		t.Error("bucket did not refill over time")
	}
}

func TestNewIPLimiterDefaultsCapacity(t *testing.T) {
	l := NewIPLimiter(0, 10)
	if l.capacity != 10 {
		t.Errorf("capacity = %d, want 10", l.capacity)
	}
}
