package ratelimiter

import (
	"context"
	"sync"
	"testing"
	"time"
)

// MockRecorder captures metrics in memory for assertion
type MockRecorder struct {
	mu       sync.Mutex
	Counters map[string]float64
	Timings  map[string][]float64
}

func NewMockRecorder() *MockRecorder {
	return &MockRecorder{
		Counters: make(map[string]float64),
		Timings:  make(map[string][]float64),
	}
}

func (m *MockRecorder) Add(name string, value float64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Counters[name+":"+tags["result"]] += value
}

func (m *MockRecorder) Observe(name string, value float64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Timings[name] = append(m.Timings[name], value)
}

func TestMemoryRateLimiter_Metrics(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	mock := NewMockRecorder()
	rl := NewMemoryRateLimiter("metrics", WithRecorder(mock))

	rl.SetRate(ctx, Config{Mode: ModeOverall, Rate: 1, Interval: time.Minute})

	if ok, err := rl.TryAcquire(ctx); err != nil || !ok {
		t.Fatalf("TryAcquire failed: (%v, %v)", ok, err)
	}
	if ok, err := rl.TryAcquire(ctx); err != nil || ok {
		t.Fatalf("Expected a denial, got (%v, %v)", ok, err)
	}

	if val := mock.Counters[metricAcquire+":granted"]; val != 1 {
		t.Errorf("Expected 1 granted decision, got %v", val)
	}
	if val := mock.Counters[metricAcquire+":denied"]; val != 1 {
		t.Errorf("Expected 1 denied decision, got %v", val)
	}
}

func TestRedisRateLimiter_Metrics(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	client := newTestClient(t, ctx)

	mock := NewMockRecorder()
	rl, err := NewRedisRateLimiter(client, testLimiterName("metrics"), WithRecorder(mock))
	if err != nil {
		t.Fatalf("Failed to create limiter: %v", err)
	}
	rl.SetRate(ctx, Config{Mode: ModeOverall, Rate: 10, Interval: time.Second})

	if ok, err := rl.TryAcquire(ctx); err != nil || !ok {
		t.Fatalf("TryAcquire failed: (%v, %v)", ok, err)
	}

	if val := mock.Counters[metricAcquire+":granted"]; val != 1 {
		t.Errorf("Expected 1 granted decision, got %v", val)
	}
	timings := mock.Timings[metricLatency]
	if len(timings) != 1 {
		t.Fatalf("Expected 1 latency observation, got %d", len(timings))
	}
	if timings[0] <= 0 {
		t.Errorf("Expected positive latency, got %v", timings[0])
	}
}
