package escalation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/yungbote/careline-backend/internal/config"
	"github.com/yungbote/careline-backend/internal/data/repos"
	"github.com/yungbote/careline-backend/internal/data/repos/testutil"
	"github.com/yungbote/careline-backend/internal/modules/consent"
	"github.com/yungbote/careline-backend/internal/modules/contact"
)

type fakeGateway struct {
	mu    sync.Mutex
	fails int
	calls int
	sent  []Notification
}

func (f *fakeGateway) Send(ctx context.Context, n Notification) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.fails {
		return false, errors.New("gateway unavailable")
	}
	f.sent = append(f.sent, n)
	return true, nil
}

func (f *fakeGateway) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type harness struct {
	cfg    *config.Triage
	repos  repos.Repos
	ledger consent.Ledger
	gw     *fakeGateway
	coord  *Coordinator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	cfg, err := config.LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault: %v", err)
	}
	r := repos.New(db, log)
	ledger := consent.New(db, log, r.ConsentRecord, cfg)
	wf, err := contact.NewWorkflow(log, ledger, contact.NewAuditStore(r.ContactAudit), cfg, nil)
	if err != nil {
		t.Fatalf("NewWorkflow: %v", err)
	}
	gw := &fakeGateway{}
	notifier := NewNotifier(gw, r.Escalation, log, nil, cfg.Escalation.Notify)
	notifier.sleep = func(context.Context, time.Duration) error { return nil }
	return &harness{
		cfg:    cfg,
		repos:  r,
		ledger: ledger,
		gw:     gw,
		coord:  NewCoordinator(log, r.Escalation, wf, ledger, notifier, cfg, nil),
	}
}
