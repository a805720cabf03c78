package escalation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	types "github.com/yungbote/careline-backend/internal/domain/triage"
	"github.com/yungbote/careline-backend/internal/platform/logger"
	"github.com/yungbote/careline-backend/internal/platform/sendgrid"
)

// Notification is what the clinical team receives for one escalation.
type Notification struct {
	EscalationID   string               `json:"escalationId"`
	ConversationID string               `json:"conversationId"`
	UserID         string               `json:"userId"`
	Type           types.EscalationType `json:"type"`
	Priority       types.Priority       `json:"priority"`
	Reasoning      string               `json:"reasoning"`
	ContactSummary string               `json:"contactSummary,omitempty"`
	CallbackETA    string               `json:"callbackEta,omitempty"`
	// FollowUp marks escalations where no contact could be collected.
	FollowUp  bool      `json:"followUp,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func (n Notification) Subject() string {
	return fmt.Sprintf("[%s] %s escalation %s", strings.ToUpper(string(n.Priority)), n.Type, n.EscalationID)
}

func (n Notification) Body() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Escalation: %s\nType: %s\nPriority: %s\nConversation: %s\nReason: %s\n",
		n.EscalationID, n.Type, n.Priority, n.ConversationID, n.Reasoning)
	if n.CallbackETA != "" {
		fmt.Fprintf(&b, "Callback: %s\n", n.CallbackETA)
	}
	if n.ContactSummary != "" {
		fmt.Fprintf(&b, "\nContact:\n%s\n", n.ContactSummary)
	}
	if n.FollowUp {
		b.WriteString("\nNo contact details were collected. The person was given the direct line; please follow up.\n")
	}
	return b.String()
}

// NotificationGateway delivers a notification. false with a nil error means
// the channel declined it.
type NotificationGateway interface {
	Send(ctx context.Context, n Notification) (bool, error)
}

// MultiGateway fans out to several channels. A notification counts as
// delivered once every channel accepted it; channels that already accepted
// are skipped on a retry.
type MultiGateway struct {
	log      *logger.Logger
	names    []string
	channels map[string]NotificationGateway

	mu        sync.Mutex
	delivered map[string]map[string]bool
}

func NewMultiGateway(baseLog *logger.Logger, channels map[string]NotificationGateway) *MultiGateway {
	names := make([]string, 0, len(channels))
	for name := range channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return &MultiGateway{
		log:       baseLog.With("service", "MultiGateway"),
		names:     names,
		channels:  channels,
		delivered: map[string]map[string]bool{},
	}
}

func (g *MultiGateway) Channels() []string { return append([]string(nil), g.names...) }

func (g *MultiGateway) Send(ctx context.Context, n Notification) (bool, error) {
	if len(g.names) == 0 {
		return false, errors.New("no notification channels configured")
	}
	pending := g.pending(n.EscalationID)

	var mu sync.Mutex
	var failures []string
	eg, egctx := errgroup.WithContext(ctx)
	for _, name := range pending {
		name := name
		gw := g.channels[name]
		eg.Go(func() error {
			ok, err := gw.Send(egctx, n)
			if err == nil && ok {
				g.markDelivered(n.EscalationID, name)
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, fmt.Sprintf("%s: %v", name, err))
			} else {
				failures = append(failures, name+": declined")
			}
			return nil
		})
	}
	_ = eg.Wait()

	if len(failures) > 0 {
		sort.Strings(failures)
		g.log.Warn("notification channels failed", "escalation_id", n.EscalationID, "failures", strings.Join(failures, "; "))
		return false, fmt.Errorf("channels failed: %s", strings.Join(failures, "; "))
	}
	g.forget(n.EscalationID)
	return true, nil
}

func (g *MultiGateway) pending(escalationID string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	done := g.delivered[escalationID]
	out := make([]string, 0, len(g.names))
	for _, name := range g.names {
		if !done[name] {
			out = append(out, name)
		}
	}
	return out
}

func (g *MultiGateway) markDelivered(escalationID, channel string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.delivered[escalationID] == nil {
		g.delivered[escalationID] = map[string]bool{}
	}
	g.delivered[escalationID][channel] = true
}

func (g *MultiGateway) forget(escalationID string) {
	g.mu.Lock()
	delete(g.delivered, escalationID)
	g.mu.Unlock()
}

const DefaultEscalationStream = "careline:escalations"

// RedisGateway appends notifications to a Redis stream read by the staff
// dashboard.
type RedisGateway struct {
	rdb    *goredis.Client
	stream string
	maxLen int64
}

func NewRedisGateway(rdb *goredis.Client, stream string, maxLen int64) *RedisGateway {
	if stream == "" {
		stream = DefaultEscalationStream
	}
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &RedisGateway{rdb: rdb, stream: stream, maxLen: maxLen}
}

func (g *RedisGateway) Send(ctx context.Context, n Notification) (bool, error) {
	payload, err := json.Marshal(n)
	if err != nil {
		return false, err
	}
	if err := g.rdb.XAdd(ctx, &goredis.XAddArgs{
		Stream: g.stream,
		MaxLen: g.maxLen,
		Approx: true,
		Values: map[string]any{
			"escalation_id": n.EscalationID,
			"priority":      string(n.Priority),
			"payload":       string(payload),
		},
	}).Err(); err != nil {
		return false, fmt.Errorf("xadd %s: %w", g.stream, err)
	}
	return true, nil
}

// EmailGateway mails the nurse team through SendGrid.
type EmailGateway struct {
	client sendgrid.Client
	to     []sendgrid.EmailAddress
}

func NewEmailGateway(client sendgrid.Client, to []string) *EmailGateway {
	addrs := make([]sendgrid.EmailAddress, 0, len(to))
	for _, a := range to {
		if a = strings.TrimSpace(a); a != "" {
			addrs = append(addrs, sendgrid.EmailAddress{Email: a})
		}
	}
	return &EmailGateway{client: client, to: addrs}
}

func (g *EmailGateway) Send(ctx context.Context, n Notification) (bool, error) {
	if len(g.to) == 0 {
		return false, errors.New("no recipients configured")
	}
	_, err := g.client.Send(ctx, sendgrid.SendEmailRequest{
		To:         g.to,
		Subject:    n.Subject(),
		Text:       n.Body(),
		Categories: []string{"escalation", string(n.Type)},
		CustomArgs: map[string]string{"escalation_id": n.EscalationID},
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// LogGateway only logs. Used when no real channel is configured.
type LogGateway struct {
	log *logger.Logger
}

func NewLogGateway(baseLog *logger.Logger) *LogGateway {
	return &LogGateway{log: baseLog.With("service", "LogGateway")}
}

func (g *LogGateway) Send(ctx context.Context, n Notification) (bool, error) {
	g.log.Info("escalation notification",
		"escalation_id", n.EscalationID,
		"conversation_id", n.ConversationID,
		"type", n.Type,
		"priority", n.Priority,
		"follow_up", n.FollowUp,
	)
	return true, nil
}
