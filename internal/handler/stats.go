package handler

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/capitalize-ai/support-console/internal/model"
	"github.com/capitalize-ai/support-console/pkg/logger"
)

// StatsSource fetches the upstream aggregate summary.
type StatsSource interface {
	FetchStats(ctx context.Context) (model.Stats, error)
}

// StatsHandler proxies the upstream stats endpoint. The numbers are
// display-only external data, fetched independently of the store.
type StatsHandler struct {
	source StatsSource
	logger *logger.Logger
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(source StatsSource, log *logger.Logger) *StatsHandler {
	return &StatsHandler{
		source: source,
		logger: log,
	}
}

// Get handles GET /api/v1/stats
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	stats, err := h.source.FetchStats(r.Context())
	if err != nil {
		h.logger.Warn("stats fetch failed", zap.Error(err))
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
