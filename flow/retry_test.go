package flow

import (
	"math/rand"
	"testing"
	"time"
)

func TestRetryPolicy_Delay(t *testing.T) {
	tests := []struct {
		name    string
		policy  RetryPolicy
		attempt int
		want    time.Duration
	}{
		{
			name:    "fixed is constant",
			policy:  RetryPolicy{Strategy: Fixed, BaseDelay: 10 * time.Millisecond},
			attempt: 5,
			want:    10 * time.Millisecond,
		},
		{
			name:    "linear grows with attempt",
			policy:  RetryPolicy{Strategy: Linear, BaseDelay: 10 * time.Millisecond},
			attempt: 3,
			want:    30 * time.Millisecond,
		},
		{
			name:    "linear caps at max",
			policy:  RetryPolicy{Strategy: Linear, BaseDelay: 10 * time.Millisecond, MaxDelay: 25 * time.Millisecond},
			attempt: 4,
			want:    25 * time.Millisecond,
		},
		{
			name:    "exponential first attempt is base",
			policy:  RetryPolicy{Strategy: Exponential, BaseDelay: 10 * time.Millisecond},
			attempt: 1,
			want:    10 * time.Millisecond,
		},
		{
			name:    "exponential doubles",
			policy:  RetryPolicy{Strategy: Exponential, BaseDelay: 10 * time.Millisecond},
			attempt: 4,
			want:    80 * time.Millisecond,
		},
		{
			name:    "exponential caps at max",
			policy:  RetryPolicy{Strategy: Exponential, BaseDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond},
			attempt: 10,
			want:    50 * time.Millisecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.policy.Delay(tt.attempt, nil)
			if got != tt.want {
				t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
			}
		})
	}
}

func TestRetryPolicy_ExponentialContract(t *testing.T) {
	// With jitter 0: delay(k) = min(base * 2^(k-1), max).
	p := RetryPolicy{Strategy: Exponential, BaseDelay: 2 * time.Millisecond, MaxDelay: 100 * time.Millisecond}
	for k := 1; k <= 10; k++ {
		want := 2 * time.Millisecond
		for i := 1; i < k; i++ {
			want *= 2
		}
		if want > 100*time.Millisecond {
			want = 100 * time.Millisecond
		}
		if got := p.Delay(k, nil); got != want {
			t.Errorf("delay(%d) = %v, want %v", k, got, want)
		}
	}
}

func TestRetryPolicy_JitterBounds(t *testing.T) {
	p := RetryPolicy{Strategy: Exponential, BaseDelay: 100 * time.Millisecond, JitterFraction: 0.5}
	rng := rand.New(rand.NewSource(1))

	lo := 50 * time.Millisecond
	hi := 150 * time.Millisecond
	for i := 0; i < 200; i++ {
		d := p.Delay(1, rng)
		if d < lo || d > hi {
			t.Fatalf("jittered delay %v outside [%v, %v]", d, lo, hi)
		}
	}
}

func TestRetryPolicy_DecorrelatedJitterBounds(t *testing.T) {
	p := RetryPolicy{Strategy: DecorrelatedJitter, BaseDelay: 10 * time.Millisecond, MaxDelay: 500 * time.Millisecond}
	rng := rand.New(rand.NewSource(7))

	for attempt := 1; attempt <= 6; attempt++ {
		d := p.Delay(attempt, rng)
		if d < 10*time.Millisecond {
			t.Errorf("attempt %d: delay %v below base", attempt, d)
		}
		if d > 500*time.Millisecond {
			t.Errorf("attempt %d: delay %v above cap", attempt, d)
		}
	}
}

func TestRetryPolicy_Validate(t *testing.T) {
	tests := []struct {
		name    string
		policy  RetryPolicy
		wantErr bool
	}{
		{"valid", RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}, false},
		{"single attempt", RetryPolicy{MaxAttempts: 1}, false},
		{"zero attempts", RetryPolicy{MaxAttempts: 0}, true},
		{"cap below base", RetryPolicy{MaxAttempts: 2, BaseDelay: time.Second, MaxDelay: time.Millisecond}, true},
		{"jitter above one", RetryPolicy{MaxAttempts: 2, JitterFraction: 1.5}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
