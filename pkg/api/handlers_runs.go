package api

import (
	"net/http"
	"strconv"

	"github.com/odvcencio/portalflow/pkg/workflow"
)

type startRunRequest struct {
	WorkflowID string             `json:"workflowId"`
	Workflow   *workflow.Workflow `json:"workflow"`
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req startRunRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}
	wf, err := s.resolveWorkflow(r, req.WorkflowID, req.Workflow)
	if err != nil {
		respondError(w, err)
		return
	}
	id, err := s.runs.Start(r.Context(), wf)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"runId": id})
}

func (s *Server) handleCurrentRun(w http.ResponseWriter, r *http.Request) {
	run := s.runs.Current()
	if raw := r.URL.Query().Get("since"); raw != "" {
		// since trims the log to entries after that many; totals are unchanged.
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			if n > len(run.Log) {
				n = len(run.Log)
			}
			run.Log = run.Log[n:]
		}
	}
	respondJSON(w, http.StatusOK, run)
}

func (s *Server) handleStopRun(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]bool{"stopped": s.runs.Stop()})
}
