package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/careline-backend/internal/config"
	"github.com/yungbote/careline-backend/internal/data/repos"
	"github.com/yungbote/careline-backend/internal/modules/consent"
	"github.com/yungbote/careline-backend/internal/modules/contact"
	"github.com/yungbote/careline-backend/internal/modules/crisis"
	"github.com/yungbote/careline-backend/internal/modules/escalation"
	"github.com/yungbote/careline-backend/internal/modules/flow"
	"github.com/yungbote/careline-backend/internal/modules/statestore"
	"github.com/yungbote/careline-backend/internal/observability"
	"github.com/yungbote/careline-backend/internal/modules/knowledge"
	"github.com/yungbote/careline-backend/internal/platform/logger"
)

type Services struct {
	Triage  *config.Triage
	Metrics *observability.Metrics

	Ledger      consent.Ledger
	Workflow    *contact.Workflow
	Notifier    *escalation.Notifier
	Coordinator *escalation.Coordinator
	Monitor     *escalation.Monitor
	Classifier  crisis.Classifier
	Store       statestore.Store
	Locker      statestore.Locker
	Knowledge   *knowledge.Search
	Engine      *flow.Engine
}

func wireServices(theDB *gorm.DB, log *logger.Logger, cfg Config, r repos.Repos, clients Clients) (Services, error) {
	log.Info("Wiring services...")

	triage, err := config.Load()
	if err != nil {
		return Services{}, fmt.Errorf("load triage config: %w", err)
	}
	metrics := observability.Init()

	ledger := consent.New(theDB, log, r.ConsentRecord, triage)

	workflow, err := contact.NewWorkflow(log, ledger, contact.NewAuditStore(r.ContactAudit), triage, metrics)
	if err != nil {
		return Services{}, fmt.Errorf("init contact workflow: %w", err)
	}

	notifier := escalation.NewNotifier(notificationGateway(log, cfg, clients), r.Escalation, log, metrics, triage.Escalation.Notify)
	coordinator := escalation.NewCoordinator(log, r.Escalation, workflow, ledger, notifier, triage, metrics)
	monitor := escalation.NewMonitor(r.Escalation, log, metrics, triage.Escalation.SweepInterval, triage.Escalation.StaleAfter)

	classifier, err := crisis.New(triage.Crisis, log, metrics)
	if err != nil {
		return Services{}, fmt.Errorf("init crisis classifier: %w", err)
	}

	store := statestore.New(theDB, log, r.ConversationState)

	var locker statestore.Locker
	if clients.Redis != nil {
		locker = statestore.NewRedisLocker(clients.Redis, log, cfg.LockTTL)
		if cfg.LockTTL <= triage.Escalation.Notify.Timeout {
			log.Warn("conversation lock TTL does not exceed the notify timeout; a turn may rely on lease renewal alone",
				"lock_ttl", cfg.LockTTL, "notify_timeout", triage.Escalation.Notify.Timeout)
		}
	} else {
		log.Warn("REDIS_ADDR not set; conversation locks are process-local")
		locker = statestore.NewKeyedMutex()
	}

	kb, err := knowledge.New(log, knowledge.ConfigFromEnv())
	if err != nil {
		return Services{}, fmt.Errorf("init knowledge base: %w", err)
	}

	var completion flow.Completion
	if clients.OpenAI != nil {
		completion = flow.CompletionFunc(clients.OpenAI.GenerateText)
	}

	engine, err := flow.NewEngine(log, flow.ConfigFromEnv(), flow.Deps{
		Store:       store,
		Locker:      locker,
		Classifier:  classifier,
		Coordinator: coordinator,
		Workflow:    workflow,
		Ledger:      ledger,
		Search:      kb,
		Completion:  completion,
		Triage:      triage,
		Metrics:     metrics,
	})
	if err != nil {
		return Services{}, fmt.Errorf("init flow engine: %w", err)
	}

	return Services{
		Triage:      triage,
		Metrics:     metrics,
		Ledger:      ledger,
		Workflow:    workflow,
		Notifier:    notifier,
		Coordinator: coordinator,
		Monitor:     monitor,
		Classifier:  classifier,
		Store:       store,
		Locker:      locker,
		Knowledge:   kb,
		Engine:      engine,
	}, nil
}

// notificationGateway fans out to every configured channel. The log
// channel is always present so escalations are never silently dropped.
func notificationGateway(log *logger.Logger, cfg Config, clients Clients) escalation.NotificationGateway {
	channels := map[string]escalation.NotificationGateway{
		"log": escalation.NewLogGateway(log),
	}
	if clients.Redis != nil {
		stream := cfg.NotifyStream
		if stream == "" {
			stream = escalation.DefaultEscalationStream
		}
		channels["redis"] = escalation.NewRedisGateway(clients.Redis, stream, cfg.NotifyStreamLimit)
	}
	if clients.SendGrid != nil {
		if len(cfg.NotifyEmails) > 0 {
			channels["email"] = escalation.NewEmailGateway(clients.SendGrid, cfg.NotifyEmails)
		} else {
			log.Warn("sendgrid configured but ESCALATION_NOTIFY_EMAILS is empty; email channel disabled")
		}
	}
	return escalation.NewMultiGateway(log, channels)
}
