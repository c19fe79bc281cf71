package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	pferrors "github.com/odvcencio/portalflow/pkg/errors"
	"github.com/odvcencio/portalflow/pkg/logging"
	"github.com/odvcencio/portalflow/pkg/workflow"
)

func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	list, err := s.workflows.List(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"workflows": list})
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := s.workflows.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, wf)
}

func (s *Server) handleSaveWorkflow(w http.ResponseWriter, r *http.Request) {
	var wf workflow.Workflow
	if err := decodeBody(r, &wf); err != nil {
		respondError(w, err)
		return
	}
	saved, err := s.workflows.Save(r.Context(), wf)
	if err != nil {
		respondError(w, err)
		return
	}
	_ = s.logger.Info(logging.CategoryWorkflow, "saved", saved.Name, map[string]any{"id": saved.ID})
	respondJSON(w, http.StatusOK, saved)
}

func (s *Server) handleDeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.workflows.Delete(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}
	_ = s.logger.Info(logging.CategoryWorkflow, "deleted", id, nil)
	respondJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"templates": s.workflows.Templates()})
}

type draftRequest struct {
	Name string `json:"name"`
}

// handleDraftTemplate returns an unsaved copy of a template with fresh
// ids. The body is optional.
func (s *Server) handleDraftTemplate(w http.ResponseWriter, r *http.Request) {
	var req draftRequest
	if r.ContentLength > 0 {
		if err := decodeBody(r, &req); err != nil {
			respondError(w, err)
			return
		}
	}
	draft, err := s.workflows.Draft(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	if req.Name != "" {
		draft.SetName(req.Name)
	}
	respondJSON(w, http.StatusOK, draft.Workflow())
}

func (s *Server) handleSchemas(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"schemas": workflow.Schemas()})
}

// resolveWorkflow picks the inline workflow or loads workflowId.
func (s *Server) resolveWorkflow(r *http.Request, id string, inline *workflow.Workflow) (workflow.Workflow, error) {
	if inline != nil {
		return *inline, nil
	}
	if id == "" {
		return workflow.Workflow{}, pferrors.Validation("workflowId or workflow is required")
	}
	return s.workflows.Get(r.Context(), id)
}
