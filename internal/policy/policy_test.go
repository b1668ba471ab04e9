package policy

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

func testLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, nil))
}

func TestClampAboveBand(t *testing.T) {
	var buf bytes.Buffer
	p := New(AutonomySupervised, 0, 0, testLogger(&buf))

	got := p.ClampTemperature(1.5)
	if got != 1.0 {
		t.Fatalf("expected 1.0, got %v", got)
	}
	if !strings.Contains(buf.String(), "temperature clamped") {
		t.Fatal("expected a clamp notice")
	}
}

func TestClampBelowBand(t *testing.T) {
	p := New(AutonomySupervised, 0, 0, nil)
	if got := p.ClampTemperature(0.05); got != 0.2 {
		t.Fatalf("expected 0.2, got %v", got)
	}
}

func TestClampInsideBandNoNotice(t *testing.T) {
	var buf bytes.Buffer
	p := New(AutonomySupervised, 0, 0, testLogger(&buf))

	if got := p.ClampTemperature(0.5); got != 0.5 {
		t.Fatalf("expected 0.5, got %v", got)
	}
	if buf.Len() != 0 {
		t.Fatalf("unexpected notice: %s", buf.String())
	}
}

func TestBandPerAutonomyLevel(t *testing.T) {
	if b := BandFor(AutonomyReadOnly); b.Max > BandFor(AutonomyFull).Max {
		t.Fatal("read_only band must not exceed full band")
	}
	if b := BandFor(AutonomySupervised); b.Min != 0.2 || b.Max != 1.0 {
		t.Fatalf("unexpected supervised band: %+v", b)
	}
}

func TestActionLimit(t *testing.T) {
	p := New(AutonomyFull, 2, 0, nil)
	if err := p.ConsumeActionAndCost(0.1); err != nil {
		t.Fatalf("first action: %v", err)
	}
	if err := p.ConsumeActionAndCost(0.1); err != nil {
		t.Fatalf("second action: %v", err)
	}
	err := p.ConsumeActionAndCost(0.1)
	if err == nil {
		t.Fatal("third action should be denied")
	}
	if !errors.Is(err, ErrDenied) {
		t.Fatalf("expected ErrDenied, got %v", err)
	}
	if !strings.Contains(err.Error(), "action limit exceeded") {
		t.Fatalf("error %q does not name the action limit", err)
	}
}

func TestCostLimit(t *testing.T) {
	p := New(AutonomyFull, 0, 1.0, nil)
	if err := p.ConsumeActionAndCost(0.6); err != nil {
		t.Fatalf("first spend: %v", err)
	}
	err := p.ConsumeActionAndCost(0.6)
	if err == nil {
		t.Fatal("spend past the cost limit should be denied")
	}
	if !strings.Contains(err.Error(), "daily cost limit exceeded") {
		t.Fatalf("error %q does not name the cost limit", err)
	}
	// A denied spend must not consume anything.
	if err := p.ConsumeActionAndCost(0.3); err != nil {
		t.Fatalf("spend within remaining budget: %v", err)
	}
}

func TestConcurrentConsume(t *testing.T) {
	p := New(AutonomyFull, 100, 0, nil)
	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.ConsumeActionAndCost(0.01)
		}()
	}
	wg.Wait()
	if p.ActionsUsed() != 100 {
		t.Fatalf("expected 100 actions used, got %d", p.ActionsUsed())
	}
}

func TestParseAutonomyLevel(t *testing.T) {
	if _, err := ParseAutonomyLevel("supervised"); err != nil {
		t.Fatalf("parse supervised: %v", err)
	}
	if _, err := ParseAutonomyLevel("yolo"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
