package clock

import "testing"

func TestFake_AdvanceAndSet(t *testing.T) {
	f := NewFake(10)
	if f.NowS() != 10 {
		t.Fatalf("expected t0=10, got %f", f.NowS())
	}

	f.Advance(2.5)
	if f.NowS() != 12.5 {
		t.Fatalf("expected 12.5 after advance, got %f", f.NowS())
	}

	f.Set(0)
	if f.NowS() != 0 {
		t.Fatalf("expected 0 after Set, got %f", f.NowS())
	}
}

func TestIsFresh(t *testing.T) {
	cases := []struct {
		now, ts, maxAge float64
		want            bool
	}{
		{now: 10, ts: 9, maxAge: 2, want: true},
		{now: 10, ts: 7, maxAge: 2, want: false},
		{now: 10, ts: 10, maxAge: 0, want: true},
	}
	for _, c := range cases {
		if got := IsFresh(c.now, c.ts, c.maxAge); got != c.want {
			t.Fatalf("IsFresh(%f, %f, %f) = %v, want %v", c.now, c.ts, c.maxAge, got, c.want)
		}
	}
}

func TestCheckFresh_ReturnsStaleSampleError(t *testing.T) {
	if err := CheckFresh(10, 1, 2); err == nil {
		t.Fatal("expected a stale-sample error")
	}
	if err := CheckFresh(10, 9, 2); err != nil {
		t.Fatalf("unexpected error for fresh sample: %v", err)
	}
}
