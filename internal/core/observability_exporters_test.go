package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestExpvarMetricsRecorder(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	if rec.Name() == "" {
		t.Fatalf("expected generated name")
	}
	ctx := context.Background()
	rec.Observe(ctx, "reserve_and_mint", true, 20*time.Millisecond)
	rec.Observe(ctx, "reserve_and_mint", false, 5*time.Millisecond)
	rec.Observe(ctx, "", true, time.Millisecond) // ignored

	snap := rec.Snapshot()
	if snap.DurationsMS["reserve_and_mint"] != 25 {
		t.Fatalf("durations: %+v", snap.DurationsMS)
	}
	if snap.Results["reserve_and_mint"]["success"] != 1 || snap.Results["reserve_and_mint"]["error"] != 1 {
		t.Fatalf("results: %+v", snap.Results)
	}
	if len(snap.DurationsMS) != 1 {
		t.Fatalf("blank operation should be ignored: %+v", snap.DurationsMS)
	}
}

func TestJSONTracer(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)
	_, span := tracer.Start(context.Background(), "finalize_fusion")
	span.End(errors.New("boom"))
	_, span = tracer.Start(context.Background(), "finalize_fusion")
	span.End(nil)

	entries := tracer.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Status != "error" || entries[0].Error != "boom" {
		t.Fatalf("first entry: %+v", entries[0])
	}
	if entries[1].Status != "success" {
		t.Fatalf("second entry: %+v", entries[1])
	}

	dec := json.NewDecoder(strings.NewReader(buf.String()))
	var decoded JSONTraceEntry
	if err := dec.Decode(&decoded); err != nil {
		t.Fatalf("decode stream: %v", err)
	}
	if decoded.Operation != "finalize_fusion" {
		t.Fatalf("decoded: %+v", decoded)
	}
}

func TestPrometheusMetricsRecorder(t *testing.T) {
	registry := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder(registry)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	ctx := context.Background()
	rec.Observe(ctx, "request_reroll", true, 10*time.Millisecond)
	rec.Observe(ctx, "request_reroll", false, 10*time.Millisecond)

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := map[string]bool{}
	for _, mf := range families {
		found[mf.GetName()] = true
	}
	if !found["relicforge_engine_operation_duration_seconds"] {
		t.Fatalf("missing duration metric: %v", found)
	}
	if !found["relicforge_engine_operation_results_total"] {
		t.Fatalf("missing results metric: %v", found)
	}

	// Registering twice on the same registry must fail.
	if _, err := NewPrometheusMetricsRecorder(registry); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}

func TestServiceObservabilityWiring(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	tracer := NewJSONTracer(nil)
	svc := newTestService(WithMetricsRecorder(rec), WithTracer(tracer))

	if _, _, err := svc.ReserveAndMint(context.Background(), "ava", TierCommon, "", 100); err != nil {
		t.Fatalf("mint: %v", err)
	}
	snap := rec.Snapshot()
	if snap.Results["reserve_and_mint"]["success"] != 1 {
		t.Fatalf("metrics not recorded: %+v", snap.Results)
	}
	entries := tracer.Entries()
	if len(entries) != 1 || entries[0].Operation != "reserve_and_mint" {
		t.Fatalf("trace not recorded: %+v", entries)
	}
}
