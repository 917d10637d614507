package observability

import (
	"context"
	"testing"
	"time"

	"github.com/hazyhaar/shotdiff/dbopen"
)

func newMetrics(t *testing.T, opts ...Option) *Metrics {
	t.Helper()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	m := New(db, append([]Option{WithFlushInterval(time.Hour)}, opts...)...)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestRecordFlushQuery(t *testing.T) {
	m := newMetrics(t)
	ctx := context.Background()

	m.Record(&Metric{Name: CaseDuration, RunID: "r1", Value: 120, Unit: "milliseconds",
		Labels: map[string]string{"class": "Home", "result": "passed"}})
	m.Record(&Metric{Name: DiffPixels, RunID: "r1", Value: 7, Unit: "pixels"})
	m.Record(&Metric{Name: CaseDuration, RunID: "r2", Value: 80, Unit: "milliseconds"})

	got, err := m.Query(ctx, Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("got %d metrics before flush, want 0", len(got))
	}

	m.Flush()

	got, err = m.Query(ctx, Filter{Name: CaseDuration, RunID: "r1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d metrics, want 1", len(got))
	}
	if got[0].Value != 120 || got[0].Labels["class"] != "Home" || got[0].Unit != "milliseconds" {
		t.Errorf("metric = %+v", got[0])
	}

	all, err := m.Query(ctx, Filter{Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("limit: got %d, want 2", len(all))
	}
}

func TestBufferFullFlushes(t *testing.T) {
	m := newMetrics(t, WithBufferSize(2))
	m.Record(&Metric{Name: DiffPixels, Value: 1})
	m.Record(&Metric{Name: DiffPixels, Value: 2})

	got, err := m.Query(context.Background(), Filter{Name: DiffPixels})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("got %d metrics, want 2 after buffer filled", len(got))
	}
}

func TestCleanup(t *testing.T) {
	m := newMetrics(t)
	ctx := context.Background()
	old := time.Now().Add(-48 * time.Hour)
	m.Record(&Metric{Name: CaseDuration, Timestamp: old, Value: 1})
	m.Record(&Metric{Name: CaseDuration, Value: 2})
	m.Flush()

	n, err := m.Cleanup(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("removed %d, want 1", n)
	}
	got, _ := m.Query(ctx, Filter{Since: old.Add(time.Hour)})
	if len(got) != 1 || got[0].Value != 2 {
		t.Errorf("remaining = %+v", got)
	}
}
