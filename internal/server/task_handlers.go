package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/aristath/cryptodash/internal/domain"
	"github.com/aristath/cryptodash/internal/syncstatus"
)

// handleSyncStatus handles GET /api/sync-status?data_type=&symbol=&status=
func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := syncstatus.Filter{
		DataType: q.Get("data_type"),
		Symbol:   domain.NormalizeSymbol(q.Get("symbol")),
	}
	if v := q.Get("status"); v != "" {
		status, err := syncstatus.ParseStatus(v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Status = status
	}

	records, err := s.cfg.Status.List(r.Context(), filter)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	if records == nil {
		records = []syncstatus.Record{}
	}
	s.writeData(w, http.StatusOK, records)
}

type runTasksRequest struct {
	Task string `json:"task"`
}

// handleRunTasks handles POST /api/tasks/run with body {"task": "..."}.
// An empty body or task runs every task.
func (s *Server) handleRunTasks(w http.ResponseWriter, r *http.Request) {
	var req runTasksRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	report, err := s.cfg.Runner.Run(r.Context(), req.Task)
	if report == nil {
		s.writeFailure(w, err)
		return
	}

	status := http.StatusOK
	if !report.OK() {
		status = http.StatusInternalServerError
	}
	s.writeData(w, status, report)
}
