package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"pdfrag/internal/domain"
)

type errorBody struct {
	Error   string              `json:"error"`
	Code    int                 `json:"code,omitempty"`
	Details []domain.FieldIssue `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err onto a status and a JSON body. Internal details are
// logged, never returned.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var (
		ve  *domain.ValidationError
		ue  *domain.UpstreamError
		mbe *http.MaxBytesError
	)
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: ve.Message, Details: ve.Details})
	case errors.Is(err, domain.ErrEmptyContent):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "No content extracted"})
	case errors.As(err, &mbe):
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: "File too large"})
	case errors.As(err, &ue):
		logger.Warn("upstream failure", zap.String("service", ue.Service), zap.Int("status", ue.Status), zap.Error(err))
		writeJSON(w, http.StatusBadGateway, errorBody{Error: "Upstream " + ue.Service + " failed", Code: ue.Status})
	default:
		logger.Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Internal error"})
	}
}
