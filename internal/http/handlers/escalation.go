package handlers

import (
	"context"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	types "github.com/yungbote/careline-backend/internal/domain/triage"
	"github.com/yungbote/careline-backend/internal/http/response"
)

type EscalationLister interface {
	ListActive(ctx context.Context, limit int) ([]*types.EscalationRecord, error)
}

type EscalationHandler struct {
	escalations EscalationLister
}

func NewEscalationHandler(escalations EscalationLister) *EscalationHandler {
	return &EscalationHandler{escalations: escalations}
}

// GET /api/staff/escalations?limit=50
func (h *EscalationHandler) ListActive(c *gin.Context) {
	limit := 50
	if v := strings.TrimSpace(c.Query("limit")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	rows, err := h.escalations.ListActive(c.Request.Context(), limit)
	if err != nil {
		response.RespondErr(c, err, "list_escalations_failed")
		return
	}
	response.RespondOK(c, gin.H{"escalations": rows})
}
