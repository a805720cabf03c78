package escalation

import (
	"context"
	"testing"
	"time"

	"github.com/yungbote/careline-backend/internal/data/repos"
	"github.com/yungbote/careline-backend/internal/data/repos/testutil"
	types "github.com/yungbote/careline-backend/internal/domain/triage"
	"github.com/yungbote/careline-backend/internal/pkg/dbctx"
)

func TestMonitorSweep(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	ctx := context.Background()
	r := repos.New(db, log)

	now := time.Now().UTC()
	stale := testutil.SeedEscalation(t, ctx, db, "conv-1", types.EscalationContactCollecting, now.Add(-2*time.Hour))
	fresh := testutil.SeedEscalation(t, ctx, db, "conv-2", types.EscalationInitiated, now.Add(-time.Minute))
	done := testutil.SeedEscalation(t, ctx, db, "conv-3", types.EscalationCompleted, now.Add(-3*time.Hour))

	m := NewMonitor(r.Escalation, log, nil, time.Minute, 30*time.Minute)
	n, err := m.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("swept: want=1 got=%d", n)
	}

	cases := []struct {
		id     string
		want   types.EscalationStatus
		reason string
	}{
		{stale.EscalationID, types.EscalationCompleted, StaleSweepReason},
		{fresh.EscalationID, types.EscalationInitiated, ""},
		{done.EscalationID, types.EscalationCompleted, ""},
	}
	for _, tc := range cases {
		got, _ := r.Escalation.GetByID(dbctx.From(ctx), tc.id)
		if got.Status != tc.want || got.CompletionReason != tc.reason {
			t.Fatalf("%s: want=%s/%q got=%s/%q", tc.id, tc.want, tc.reason, got.Status, got.CompletionReason)
		}
	}
}

func TestMonitorRunStopsOnCancel(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	m := NewMonitor(repos.New(db, log).Escalation, log, nil, 10*time.Millisecond, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("monitor did not stop")
	}
}
