package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"tradeledger/src/replay"
)

type replayer interface {
	Rebuild(ctx context.Context, owner string) (replay.Result, error)
	RebuildAll(ctx context.Context) ([]replay.Result, error)
	Analyze(ctx context.Context, owner string) (*replay.Report, error)
}

// RebuildHandler rebuilds one account from its trade log.
func RebuildHandler(svc replayer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner := chi.URLParam(r, "owner")
		if owner == "" {
			http.Error(w, "missing owner", http.StatusBadRequest)
			return
		}

		result, err := svc.Rebuild(r.Context(), owner)
		if err != nil {
			logger.WithError(err).WithField("owner", owner).Error("rebuild failed")
			result.Error = err.Error()
			writeJSON(w, http.StatusInternalServerError, result)
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}

// RebuildAllHandler rebuilds every account; per-account failures are
// reported inside the result list, not as an HTTP error.
func RebuildAllHandler(svc replayer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results, err := svc.RebuildAll(r.Context())
		if err != nil {
			logger.WithError(err).Error("rebuild-all failed")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, results)
	}
}

// AnalyzeHandler runs the read-only replay diagnostic for one account.
func AnalyzeHandler(svc replayer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner := chi.URLParam(r, "owner")
		if owner == "" {
			http.Error(w, "missing owner", http.StatusBadRequest)
			return
		}

		report, err := svc.Analyze(r.Context(), owner)
		if err != nil {
			logger.WithError(err).WithField("owner", owner).Error("analysis failed")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, report)
	}
}
