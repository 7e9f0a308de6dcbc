package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/lineflow-backend/internal/data/reporting"
	"github.com/yungbote/lineflow-backend/internal/http/response"
	pkgerrors "github.com/yungbote/lineflow-backend/internal/pkg/errors"
	"github.com/yungbote/lineflow-backend/internal/services"
)

// OpsHandler serves the internal operations API.
type OpsHandler struct {
	scheduler services.Scheduler
	followers services.FollowerSync
	funnel    reporting.FunnelRepo
	now       func() time.Time
}

func NewOpsHandler(scheduler services.Scheduler, followers services.FollowerSync, funnel reporting.FunnelRepo) *OpsHandler {
	return &OpsHandler{scheduler: scheduler, followers: followers, funnel: funnel, now: time.Now}
}

// POST /internal/sweep
func (h *OpsHandler) Sweep(c *gin.Context) {
	res, err := h.scheduler.RunDueSweep(c.Request.Context(), h.now().UTC(), services.TriggerManual)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"sweep": res})
}

// POST /internal/followers/sync
func (h *OpsHandler) SyncFollowers(c *gin.Context) {
	if h.followers == nil {
		response.RespondError(c, http.StatusServiceUnavailable, "follower_sync_unavailable", nil)
		return
	}
	res, err := h.followers.Run(c.Request.Context())
	if err != nil {
		response.RespondError(c, http.StatusBadGateway, "follower_sync_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"followers": res})
}

// GET /internal/reports/surveys/:id/funnel?orders=1,2
func (h *OpsHandler) SurveyFunnel(c *gin.Context) {
	if h.funnel == nil {
		response.RespondError(c, http.StatusServiceUnavailable, "reporting_unavailable", nil)
		return
	}
	surveyID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_survey_id", err)
		return
	}
	orders, err := parseOrders(c.Query("orders"))
	if err != nil {
		response.RespondErr(c, err)
		return
	}

	f, err := h.funnel.Funnel(c.Request.Context(), surveyID)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	payload := gin.H{"funnel": f}
	if len(orders) > 0 {
		dist, err := h.funnel.Distribution(c.Request.Context(), surveyID, orders)
		if err != nil {
			response.RespondErr(c, err)
			return
		}
		payload["distribution"] = dist
	}
	response.RespondOK(c, payload)
}

func parseOrders(raw string) ([]int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var out []int
	for _, part := range strings.Split(raw, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 1 {
			return nil, fmt.Errorf("%w: bad order %q", pkgerrors.ErrInvalidArgument, part)
		}
		out = append(out, n)
	}
	return out, nil
}
