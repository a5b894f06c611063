package health

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestProbeRunnerAllHealthy(t *testing.T) {
	runner := NewProbeRunner(time.Second,
		Probe{Name: "a", Check: func(context.Context) error { return nil }},
		Probe{Name: "b", Check: func(context.Context) error { return nil }},
	)
	ready, results := runner.Ready(context.Background())
	if !ready {
		t.Fatal("expected ready")
	}
	if len(results) != 2 || !results[0].Healthy || !results[1].Healthy {
		t.Fatalf("unexpected results: %+v", results)
	}
}

func TestProbeRunnerReportsFailure(t *testing.T) {
	runner := NewProbeRunner(time.Second,
		Probe{Name: "ok", Check: func(context.Context) error { return nil }},
		Probe{Name: "down", Check: func(context.Context) error { return errors.New("connection refused") }},
	)
	ready, results := runner.Ready(context.Background())
	if ready {
		t.Fatal("expected not ready")
	}
	var found bool
	for _, res := range results {
		if res.Name == "down" {
			found = true
			if res.Healthy || res.Error == "" {
				t.Fatalf("failure detail missing: %+v", res)
			}
		}
	}
	if !found {
		t.Fatal("failing probe missing from results")
	}
}

func TestProbeRunnerHonorsTimeout(t *testing.T) {
	runner := NewProbeRunner(20*time.Millisecond,
		Probe{Name: "slow", Check: func(ctx context.Context) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
				return nil
			}
		}},
	)
	start := time.Now()
	ready, _ := runner.Ready(context.Background())
	if ready {
		t.Fatal("expected timeout to mark probe unhealthy")
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatal("probe timeout not enforced")
	}
}
