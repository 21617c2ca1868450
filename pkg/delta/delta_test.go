package delta

import (
	"testing"
	"time"
)

func TestStoreLatestWins(t *testing.T) {
	d := New()
	t1 := time.Now()
	t2 := t1.Add(time.Millisecond)

	if !d.Store(10, t1) {
		t.Fatal("Store() with fresh stamp should win")
	}
	if d.Store(99, t1) {
		t.Error("Store() with equal stamp should lose")
	}
	if !d.Store(-4, t2) {
		t.Error("Store() with newer stamp should win")
	}

	count, stamp := d.Value()
	if count != -4 {
		t.Errorf("Value() count = %d, want -4", count)
	}
	if !stamp.Equal(t2) {
		t.Errorf("Value() stamp = %v, want %v", stamp, t2)
	}
}

func TestStoreStaleWriterLoses(t *testing.T) {
	d := New()
	t1 := time.Now()

	d.Store(5, t1.Add(time.Second))
	if d.Store(7, t1) {
		t.Error("Store() with older stamp should lose")
	}
	if count, _ := d.Value(); count != 5 {
		t.Errorf("Value() count = %d, want 5", count)
	}
}

func TestConsumeFullDemand(t *testing.T) {
	d := New()
	t1 := time.Now()
	d.Store(3, t1)

	take := d.Consume(10, true, true)
	if take != 3 {
		t.Errorf("Consume() = %d, want 3", take)
	}
	count, stamp := d.Value()
	if count != 0 {
		t.Errorf("residual = %d, want 0", count)
	}
	if !stamp.After(t1) {
		t.Error("stamp was not refreshed")
	}
}

func TestConsumePartialKeepsSign(t *testing.T) {
	tests := []struct {
		name     string
		count    int
		capacity int
		wantTake int
		wantLeft int
	}{
		{"positive partial", 5, 2, 2, 3},
		{"negative partial", -5, 2, -2, -3},
		{"negative full", -4, 10, -4, 0},
		{"zero demand", 0, 10, 0, 0},
		{"zero capacity", 5, 0, 0, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New()
			d.Store(tt.count, time.Now())
			if got := d.Consume(tt.capacity, true, true); got != tt.wantTake {
				t.Errorf("Consume() = %d, want %d", got, tt.wantTake)
			}
			if left, _ := d.Value(); left != tt.wantLeft {
				t.Errorf("residual = %d, want %d", left, tt.wantLeft)
			}
		})
	}
}

func TestConsumeUnservableSign(t *testing.T) {
	d := New()
	d.Store(5, time.Now())
	if got := d.Consume(10, false, true); got != 0 {
		t.Errorf("Consume() without a warmer = %d, want 0", got)
	}
	if count, _ := d.Value(); count != 5 {
		t.Errorf("cell should be untouched, got %d", count)
	}

	d = New()
	d.Store(-5, time.Now())
	if got := d.Consume(10, true, false); got != 0 {
		t.Errorf("Consume() without a cooler = %d, want 0", got)
	}
}

func TestStampMonotonic(t *testing.T) {
	d := New()
	d.Store(100, time.Now())

	var last time.Time
	for i := 0; i < 50; i++ {
		d.Consume(1, true, true)
		_, stamp := d.Value()
		if stamp.Before(last) {
			t.Fatalf("stamp decreased: %v < %v", stamp, last)
		}
		last = stamp
	}
}
