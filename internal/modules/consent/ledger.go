package consent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/careline-backend/internal/config"
	"github.com/yungbote/careline-backend/internal/data/repos"
	types "github.com/yungbote/careline-backend/internal/domain/triage"
	"github.com/yungbote/careline-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/careline-backend/internal/pkg/errors"
	"github.com/yungbote/careline-backend/internal/platform/logger"
)

// Metadata overrides the configured policy for one grant. Empty fields fall
// back to the policy for the consent type.
type Metadata struct {
	Purpose        string
	DataCategories []string
	LegalBasis     string
	ConsentText    string
}

type Status struct {
	Granted    bool       `json:"granted"`
	ConsentID  string     `json:"consentId,omitempty"`
	Timestamp  *time.Time `json:"timestamp,omitempty"`
	LegalBasis string     `json:"legalBasis,omitempty"`
}

// Ledger is the single place consent is written or checked. Reads observe
// every write that returned before them.
type Ledger interface {
	RecordConsent(ctx context.Context, userID, consentType string, md Metadata) (*types.ConsentRecord, error)
	GetConsentStatus(ctx context.Context, userID, consentType string) (Status, error)
	Withdraw(ctx context.Context, userID, consentType string) (bool, error)
	History(ctx context.Context, userID, consentType string) ([]*types.ConsentRecord, error)
}

type ledger struct {
	db   *gorm.DB
	log  *logger.Logger
	repo repos.ConsentRecordRepo
	cfg  *config.Triage
}

func New(db *gorm.DB, baseLog *logger.Logger, repo repos.ConsentRecordRepo, cfg *config.Triage) Ledger {
	return &ledger{
		db:   db,
		log:  baseLog.With("service", "ConsentLedger"),
		repo: repo,
		cfg:  cfg,
	}
}

func (l *ledger) RecordConsent(ctx context.Context, userID, consentType string, md Metadata) (*types.ConsentRecord, error) {
	if err := checkKey(userID, consentType); err != nil {
		return nil, err
	}
	policy := l.cfg.Policy(consentType)
	row := &types.ConsentRecord{
		UserID:         userID,
		ConsentType:    consentType,
		Purpose:        firstNonEmpty(md.Purpose, policy.Purpose, consentType),
		DataCategories: types.CategoriesJSON(firstNonEmptyList(md.DataCategories, policy.DataCategories)),
		LegalBasis:     firstNonEmpty(md.LegalBasis, policy.LegalBasis, "consent"),
		ConsentText:    firstNonEmpty(md.ConsentText, policy.ConsentText),
		Status:         types.ConsentRecordActive,
		Timestamp:      time.Now().UTC(),
	}
	if err := l.repo.Create(dbctx.From(ctx), row); err != nil {
		return nil, fmt.Errorf("record consent: %w", err)
	}
	l.log.Info("consent recorded", "user_id", userID, "consent_type", consentType, "legal_basis", row.LegalBasis)
	return row, nil
}

func (l *ledger) GetConsentStatus(ctx context.Context, userID, consentType string) (Status, error) {
	if err := checkKey(userID, consentType); err != nil {
		return Status{}, err
	}
	row, err := l.repo.Latest(dbctx.From(ctx), userID, consentType)
	if err != nil {
		return Status{}, fmt.Errorf("consent status: %w", err)
	}
	return statusOf(row), nil
}

// Withdraw appends a withdrawn record. It reports false when there was no
// active consent to withdraw.
func (l *ledger) Withdraw(ctx context.Context, userID, consentType string) (bool, error) {
	if err := checkKey(userID, consentType); err != nil {
		return false, err
	}
	withdrawn := false
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inner := dbctx.Context{Ctx: ctx, Tx: tx}
		latest, err := l.repo.Latest(inner, userID, consentType)
		if err != nil {
			return err
		}
		if latest == nil || latest.Status != types.ConsentRecordActive {
			return nil
		}
		row := &types.ConsentRecord{
			UserID:         userID,
			ConsentType:    consentType,
			Purpose:        latest.Purpose,
			DataCategories: latest.DataCategories,
			LegalBasis:     latest.LegalBasis,
			ConsentText:    "withdrawn by user",
			Status:         types.ConsentRecordWithdrawn,
			Timestamp:      time.Now().UTC(),
		}
		if err := l.repo.Create(inner, row); err != nil {
			return err
		}
		withdrawn = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("withdraw consent: %w", err)
	}
	if withdrawn {
		l.log.Info("consent withdrawn", "user_id", userID, "consent_type", consentType)
	}
	return withdrawn, nil
}

func (l *ledger) History(ctx context.Context, userID, consentType string) ([]*types.ConsentRecord, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id required", pkgerrors.ErrInvalidArgument)
	}
	return l.repo.ListByUser(dbctx.From(ctx), userID, consentType)
}

func statusOf(row *types.ConsentRecord) Status {
	if row == nil || row.Status != types.ConsentRecordActive {
		return Status{}
	}
	ts := row.Timestamp
	return Status{Granted: true, ConsentID: row.ConsentID, Timestamp: &ts, LegalBasis: row.LegalBasis}
}

func checkKey(userID, consentType string) error {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(consentType) == "" {
		return fmt.Errorf("%w: user id and consent type required", pkgerrors.ErrInvalidArgument)
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func firstNonEmptyList(lists ...[]string) []string {
	for _, l := range lists {
		if len(l) > 0 {
			return l
		}
	}
	return nil
}
