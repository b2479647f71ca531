package handlers

import (
	"net/http"

	"github.com/davidm/taskflow/internal/activity"
	"github.com/davidm/taskflow/internal/logger"
)

type ActivityHandler struct {
	activities *activity.Log
}

func NewActivityHandler(activities *activity.Log) *ActivityHandler {
	return &ActivityHandler{activities: activities}
}

func (h *ActivityHandler) Global(w http.ResponseWriter, r *http.Request) {
	entries, err := h.activities.GlobalActivities(r.Context(), queryLimit(r, 20))
	if err != nil {
		logger.Error().Err(err).Msg("activity lookup failed")
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondSuccess(w, http.StatusOK, "", map[string]interface{}{"activities": entries})
}
