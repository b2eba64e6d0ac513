package event

import "testing"

func TestDefaultDeliveryOptions(t *testing.T) {
	o := DefaultDeliveryOptions()
	if o.Mode != AtLeastOnce {
		t.Fatalf("default mode = %v, want AtLeastOnce", o.Mode)
	}
	if o.Ordered {
		t.Fatal("default should be unordered")
	}
	if o.Persistent {
		t.Fatal("default should be non-persistent")
	}
	if o.TimeoutMillis != DefaultTimeoutMillis {
		t.Fatalf("default timeout = %d, want %d", o.TimeoutMillis, DefaultTimeoutMillis)
	}
	if o.MaxRetries != DefaultMaxRetries {
		t.Fatalf("default max retries = %d, want %d", o.MaxRetries, DefaultMaxRetries)
	}
}

func TestNormalizeFillsZeroValues(t *testing.T) {
	got := DeliveryOptions{Mode: ExactlyOnce}.Normalize()
	if got.TimeoutMillis != DefaultTimeoutMillis {
		t.Fatalf("timeout not defaulted: %d", got.TimeoutMillis)
	}
	if got.MaxRetries != DefaultMaxRetries {
		t.Fatalf("max retries not defaulted: %d", got.MaxRetries)
	}
	if got.Priority != DefaultPriority {
		t.Fatalf("priority not defaulted: %d", got.Priority)
	}
}

func TestNormalizeClampsPriority(t *testing.T) {
	if got := (DeliveryOptions{Priority: -5}).Normalize().Priority; got != MinPriority {
		t.Fatalf("negative priority clamped to %d, want %d", got, MinPriority)
	}
	if got := (DeliveryOptions{Priority: 99}).Normalize().Priority; got != MaxPriority {
		t.Fatalf("excess priority clamped to %d, want %d", got, MaxPriority)
	}
}

func TestDeliveryModeString(t *testing.T) {
	cases := map[DeliveryMode]string{
		FireAndForget: "FIRE_AND_FORGET",
		AtMostOnce:    "AT_MOST_ONCE",
		AtLeastOnce:   "AT_LEAST_ONCE",
		ExactlyOnce:   "EXACTLY_ONCE",
	}
	for mode, want := range cases {
		if got := mode.String(); got != want {
			t.Fatalf("%d.String() = %q, want %q", mode, got, want)
		}
	}
}
