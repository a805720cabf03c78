package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/careline-backend/internal/http/response"
	"github.com/yungbote/careline-backend/internal/modules/flow"
	"github.com/yungbote/careline-backend/internal/platform/ctxutil"
)

type TurnProcessor interface {
	ProcessTurn(ctx context.Context, in flow.TurnInput) (flow.TurnOutput, error)
}

type ChatHandler struct {
	flow TurnProcessor
}

func NewChatHandler(flow TurnProcessor) *ChatHandler {
	return &ChatHandler{flow: flow}
}

// POST /api/chat/turn
func (h *ChatHandler) Turn(c *gin.Context) {
	var req flow.TurnInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if td := ctxutil.GetTraceData(c.Request.Context()); td != nil {
		td.ConversationID = req.ConversationID
	}
	out, err := h.flow.ProcessTurn(c.Request.Context(), req)
	if err != nil {
		response.RespondErr(c, err, "turn_failed")
		return
	}
	response.RespondOK(c, out)
}
