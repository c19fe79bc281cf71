package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	pferrors "github.com/odvcencio/portalflow/pkg/errors"
)

const maxBodyBytes = 4 << 20

// respondJSON sends a JSON response with appropriate headers.
func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Error       string   `json:"error"`
	Status      int      `json:"status"`
	Code        string   `json:"code,omitempty"`
	Message     string   `json:"message"`
	Remediation []string `json:"remediation,omitempty"`
	Timestamp   string   `json:"timestamp"`
}

// statusFor maps error codes to HTTP statuses.
func statusFor(err error) int {
	switch pferrors.GetCode(err) {
	case pferrors.ErrCodeValidation:
		return http.StatusBadRequest
	case pferrors.ErrCodeNotFound:
		return http.StatusNotFound
	case pferrors.ErrCodeSessionBusy:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondError sends a structured JSON error with the status for err's code.
func respondError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	resp := errorResponse{
		Status:    status,
		Code:      string(pferrors.GetCode(err)),
		Message:   http.StatusText(status),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if pf, ok := pferrors.As(err); ok {
		resp.Message = pf.Display()
		if len(pf.Remediation) > 0 {
			resp.Remediation = append([]string{}, pf.Remediation...)
		}
	} else if err != nil {
		resp.Message = err.Error()
	}
	resp.Error = resp.Message
	respondJSON(w, status, resp)
}

// decodeBody reads a JSON request body into v. Failures are VALIDATION.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if err == io.EOF {
			return pferrors.Validation("request body is empty")
		}
		return pferrors.Validation(fmt.Sprintf("invalid JSON body: %v", err))
	}
	return nil
}

func handleMetrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}
