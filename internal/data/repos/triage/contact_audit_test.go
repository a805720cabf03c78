package triage

import (
	"context"
	"encoding/json"
	"testing"

	"gorm.io/datatypes"

	"github.com/yungbote/careline-backend/internal/data/repos/testutil"
	types "github.com/yungbote/careline-backend/internal/domain/triage"
	"github.com/yungbote/careline-backend/internal/pkg/dbctx"
)

func TestContactAuditRepo(t *testing.T) {
	db := testutil.DB(t)
	repo := NewContactAuditRepo(db, testutil.Logger(t))
	dbc := dbctx.From(context.Background())

	if err := repo.Create(dbc, &types.ContactAudit{UserID: "u1"}); err == nil {
		t.Fatalf("Create without contacts: want error")
	}

	b, _ := json.Marshal(&types.ContactDetails{Name: "Sam", Phone: "07123456789"})
	row := &types.ContactAudit{
		UserID:         "u1",
		ConversationID: "c1",
		Purpose:        "nurse_callback",
		ConsentType:    "nurse_callback",
		Contacts:       datatypes.JSON(b),
	}
	if err := repo.Create(dbc, row); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if row.ID == 0 || row.CollectedAt.IsZero() {
		t.Fatalf("Create: id=%d collected_at=%v", row.ID, row.CollectedAt)
	}

	rows, err := repo.ListByUser(dbc, "u1")
	if err != nil || len(rows) != 1 {
		t.Fatalf("ListByUser: err=%v len=%d", err, len(rows))
	}
	var got types.ContactDetails
	if err := json.Unmarshal(rows[0].Contacts, &got); err != nil {
		t.Fatalf("unmarshal contacts: %v", err)
	}
	if got.Phone != "07123456789" {
		t.Fatalf("contacts: want phone got=%+v", got)
	}
}
