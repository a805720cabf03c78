package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/careline-backend/internal/http/response"
	"github.com/yungbote/careline-backend/internal/modules/consent"
)

var errNoActiveConsent = errors.New("no active consent to withdraw")

type ConsentHandler struct {
	ledger consent.Ledger
}

func NewConsentHandler(ledger consent.Ledger) *ConsentHandler {
	return &ConsentHandler{ledger: ledger}
}

// GET /api/consent/:userId/:consentType
func (h *ConsentHandler) GetStatus(c *gin.Context) {
	st, err := h.ledger.GetConsentStatus(c.Request.Context(), c.Param("userId"), c.Param("consentType"))
	if err != nil {
		response.RespondErr(c, err, "consent_status_failed")
		return
	}
	response.RespondOK(c, gin.H{"consent": st})
}

// DELETE /api/consent/:userId/:consentType
func (h *ConsentHandler) Withdraw(c *gin.Context) {
	withdrawn, err := h.ledger.Withdraw(c.Request.Context(), c.Param("userId"), c.Param("consentType"))
	if err != nil {
		response.RespondErr(c, err, "consent_withdraw_failed")
		return
	}
	if !withdrawn {
		response.RespondError(c, http.StatusNotFound, "no_active_consent", errNoActiveConsent)
		return
	}
	response.RespondOK(c, gin.H{"withdrawn": true})
}

// GET /api/consent/:userId/:consentType/history
func (h *ConsentHandler) History(c *gin.Context) {
	rows, err := h.ledger.History(c.Request.Context(), c.Param("userId"), c.Param("consentType"))
	if err != nil {
		response.RespondErr(c, err, "consent_history_failed")
		return
	}
	response.RespondOK(c, gin.H{"records": rows})
}
