package breaker

import (
	"testing"
	"time"
)

func TestBreakerTransitions(t *testing.T) {
	cb := New(200*time.Millisecond, 2)
	if cb.State() != Closed {
		t.Fatal("expected closed")
	}
	cb.Record(false)
	cb.Record(false)
	if cb.State() != Open {
		t.Fatal("expected open after consecutive failures")
	}
	if cb.Allow() != false {
		t.Fatal("should not allow until cooldown")
	}
	time.Sleep(250 * time.Millisecond)
	if cb.Allow() != true {
		t.Fatal("should allow probe in half-open")
	}
	cb.Record(true)
	if cb.State() != Closed {
		t.Fatal("expected closed after probe success")
	}
}

func TestBreakerResetsOnIntermittentSuccess(t *testing.T) {
	cb := New(time.Second, 3)
	cb.Record(false)
	cb.Record(false)
	cb.Record(true)
	cb.Record(false)
	cb.Record(false)
	if cb.State() != Closed {
		t.Fatal("expected closed: failures never reached 3 in a row")
	}
}

func TestBreakerOpensAtExactlyThreeConsecutive(t *testing.T) {
	cb := New(time.Second, 3)
	cb.Record(false)
	cb.Record(false)
	if cb.State() != Closed {
		t.Fatal("expected closed after only 2 failures")
	}
	cb.Record(false)
	if cb.State() != Open {
		t.Fatal("expected open after 3rd consecutive failure")
	}
}
