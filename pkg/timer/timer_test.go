package timer

import (
	"testing"
	"time"
)

func TestRTOClampAtMin(t *testing.T) {
	e := NewRTOEstimator()
	for i := 0; i < 20; i++ {
		e.Sample(1 * time.Millisecond)
	}
	if e.RTO() < MinRTO {
		t.Fatalf("RTO %v below floor %v", e.RTO(), MinRTO)
	}
}

func TestRTOClampAtMax(t *testing.T) {
	e := NewRTOEstimator()
	for i := 0; i < 5; i++ {
		e.Sample(120 * time.Second)
	}
	if e.RTO() > MaxRTO {
		t.Fatalf("RTO %v above ceiling %v", e.RTO(), MaxRTO)
	}
}

func TestGrowRTOCapsAtMax(t *testing.T) {
	rto := 50 * time.Second
	grown := GrowRTO(rto, MaxRTO)
	if grown > MaxRTO {
		t.Fatalf("grown RTO %v exceeds cap %v", grown, MaxRTO)
	}
	if grown <= rto {
		t.Fatalf("expected growth, got %v -> %v", rto, grown)
	}
}

func TestRetransmitterStopsFiring(t *testing.T) {
	fired := make(chan int, 10)
	r := NewRetransmitter(NewSchedule(10*time.Millisecond, 20*time.Millisecond), 3, func(attempt int) {
		fired <- attempt
	})
	r.Start()
	defer r.Stop()

	select {
	case a := <-fired:
		if a != 2 {
			t.Fatalf("expected attempt 2 first, got %d", a)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for first retransmit")
	}
}
