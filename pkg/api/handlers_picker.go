package api

import (
	"net/http"
	"strconv"
)

type startPickerRequest struct {
	URL string `json:"url"`
}

func (s *Server) handleStartPicker(w http.ResponseWriter, r *http.Request) {
	var req startPickerRequest
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			respondError(w, err)
			return
		}
	}
	id, err := s.picker.Start(r.Context(), req.URL)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"sessionId": id})
}

func (s *Server) handlePickerStatus(w http.ResponseWriter, r *http.Request) {
	since, _ := strconv.Atoi(r.URL.Query().Get("since"))
	respondJSON(w, http.StatusOK, s.picker.Status(since))
}

func (s *Server) handleStopPicker(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]bool{"stopped": s.picker.Stop()})
}
