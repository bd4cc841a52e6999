package connection

import (
	"testing"
	"time"
)

func TestBackoff(t *testing.T) {
	t.Run("DefaultSequence", func(t *testing.T) {
		b := NewBackoffWithConfig(BackoffConfig{})

		// Expected sequence (without jitter): 1s, 2s, 4s, 8s, 16s, 32s, 60s, 60s...
		expected := []time.Duration{
			1 * time.Second,
			2 * time.Second,
			4 * time.Second,
			8 * time.Second,
			16 * time.Second,
			32 * time.Second,
			60 * time.Second,
			60 * time.Second, // Should stay at max
		}

		for i, exp := range expected {
			if got := b.Next(); got != exp {
				t.Errorf("Attempt %d: got %v, want %v", i, got, exp)
			}
		}
	})

	t.Run("Jitter", func(t *testing.T) {
		// Max == Initial keeps the base delay at 1s across attempts.
		b := NewBackoffWithConfig(BackoffConfig{
			Initial: 1 * time.Second,
			Max:     1 * time.Second,
			Jitter:  JitterFactor,
		})

		samples := make([]time.Duration, 10)
		for i := range samples {
			samples[i] = b.Next()
		}

		for i, s := range samples {
			if s < 1*time.Second || s > time.Duration(float64(1*time.Second)*1.25)+time.Millisecond {
				t.Errorf("Sample %d: %v out of expected range [1s, 1.25s]", i, s)
			}
		}

		allSame := true
		for i := 1; i < len(samples); i++ {
			if samples[i] != samples[0] {
				allSame = false
				break
			}
		}
		if allSame {
			t.Error("All jittered samples are identical - jitter may not be working")
		}
	})

	t.Run("Reset", func(t *testing.T) {
		b := NewBackoffWithConfig(BackoffConfig{})
		var last time.Duration
		for i := 0; i < 5; i++ {
			last = b.Next()
		}
		if last <= InitialBackoff {
			t.Error("Backoff should have increased")
		}

		b.Reset()

		if got := b.Next(); got != InitialBackoff {
			t.Errorf("Next() = %v after reset, want %v", got, InitialBackoff)
		}
	})

	t.Run("CustomConfig", func(t *testing.T) {
		b := NewBackoffWithConfig(BackoffConfig{
			Initial:    100 * time.Millisecond,
			Max:        500 * time.Millisecond,
			Multiplier: 2.0,
			Jitter:     0, // No jitter for deterministic test
		})

		expected := []time.Duration{
			100 * time.Millisecond,
			200 * time.Millisecond,
			400 * time.Millisecond,
			500 * time.Millisecond, // Max
			500 * time.Millisecond,
		}

		for i, exp := range expected {
			got := b.Next()
			if got != exp {
				t.Errorf("Attempt %d: got %v, want %v", i, got, exp)
			}
		}
	})
}

func TestFixedDelay(t *testing.T) {
	d := FixedDelay(DefaultRetryDelay)
	for i := 0; i < 5; i++ {
		if got := d.Next(); got != time.Second {
			t.Errorf("Attempt %d: got %v, want 1s", i, got)
		}
	}
	d.Reset()
	if got := d.Next(); got != time.Second {
		t.Errorf("after reset: got %v, want 1s", got)
	}
}
