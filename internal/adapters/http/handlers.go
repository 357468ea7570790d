package http

import (
	"errors"
	"net/http"

	"github.com/dkeye/callhub/internal/app/orch"
	"github.com/dkeye/callhub/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type handlers struct {
	orch *orch.Orchestrator
}

type groupQuery struct {
	GroupID domain.GroupID `form:"groupId"`
}

type requiredGroupQuery struct {
	GroupID domain.GroupID `form:"groupId" binding:"required"`
}

type StartCallRequest struct {
	Caller     domain.UserID   `json:"caller" binding:"required"`
	Target     domain.UserID   `json:"targetUser" binding:"required"`
	GroupID    domain.GroupID  `json:"groupId" binding:"required"`
	CallType   domain.CallType `json:"callType" binding:"required,oneof=video audio"`
	CallerName string          `json:"callerName"`
}

type StartCallResponse struct {
	Call            domain.IndividualCall `json:"call"`
	TargetConnected bool                  `json:"targetConnected"`
}

type RespondCallRequest struct {
	CallID  domain.CallID     `json:"callId"`
	GroupID domain.GroupID    `json:"groupId"`
	Caller  domain.UserID     `json:"caller"`
	Target  domain.UserID     `json:"targetUser"`
	Action  domain.CallStatus `json:"action" binding:"required,oneof=accepted declined canceled"`
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "connections": h.orch.ConnectionCount()})
}

func (h *handlers) listCalls(c *gin.Context) {
	var q requiredGroupQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid groupId"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": h.orch.ActiveCalls(q.GroupID)})
}

func (h *handlers) startCall(c *gin.Context) {
	var req StartCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	call, d, err := h.orch.StartIndividualCall(orch.IndividualCallRequest{
		GroupID:    req.GroupID,
		Caller:     req.Caller,
		CallerName: req.CallerName,
		Target:     req.Target,
		CallType:   req.CallType,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, StartCallResponse{Call: call, TargetConnected: d == orch.Delivered})
}

func (h *handlers) respondCall(c *gin.Context) {
	var req RespondCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.CallID == "" && (req.Caller == "" || req.Target == "") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "callId or caller and targetUser required"})
		return
	}
	call, err := h.orch.RespondToCall(orch.CallResponse{
		CallID:  req.CallID,
		GroupID: req.GroupID,
		Caller:  req.Caller,
		Target:  req.Target,
		Action:  req.Action,
	})
	switch {
	case errors.Is(err, domain.ErrCallNotFound):
		c.JSON(http.StatusNotFound, gin.H{"status": domain.CallDeclined, "error": err.Error()})
	case err != nil:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"status": call.Status, "call": call})
	}
}

func (h *handlers) listGroupCalls(c *gin.Context) {
	var q groupQuery
	_ = c.ShouldBindQuery(&q)
	c.JSON(http.StatusOK, gin.H{"groupCalls": h.orch.GroupCalls(q.GroupID)})
}

func (h *handlers) listOnline(c *gin.Context) {
	var q groupQuery
	_ = c.ShouldBindQuery(&q)
	c.JSON(http.StatusOK, gin.H{"users": h.orch.OnlineUsers(q.GroupID)})
}

func (h *handlers) presence(c *gin.Context) {
	p, ok := h.orch.Presence(domain.UserID(c.Param("userId")))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown user"})
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *handlers) capabilities(c *gin.Context) {
	gid := domain.GroupID(c.Param("groupId"))
	caps, err := h.orch.GroupCapabilities(gid)
	switch {
	case errors.Is(err, orch.ErrMediaUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrGroupIDEmpty), errors.Is(err, domain.ErrGroupTooLong):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case err != nil:
		log.Error().Err(err).Str("module", "adapters.http").Str("group", string(gid)).Msg("capabilities")
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"groupId": gid, "codecs": caps})
	}
}
