package mq

import (
	"testing"
	"time"
)

func TestDelayHeaders(t *testing.T) {
	tests := []struct {
		name  string
		delay time.Duration
		want  int64
	}{
		{name: "twenty seconds", delay: 20 * time.Second, want: 20000},
		{name: "sub-second", delay: 250 * time.Millisecond, want: 250},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := delayHeaders(tt.delay)
			got, ok := headers["x-delay"].(int64)
			if !ok {
				t.Fatalf("x-delay header missing: %v", headers)
			}
			if got != tt.want {
				t.Errorf("x-delay = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestDelayHeaders_ImmediateDelivery(t *testing.T) {
	if headers := delayHeaders(0); headers != nil {
		t.Errorf("expected nil headers for zero delay, got %v", headers)
	}
	if headers := delayHeaders(-time.Second); headers != nil {
		t.Errorf("expected nil headers for negative delay, got %v", headers)
	}
}
