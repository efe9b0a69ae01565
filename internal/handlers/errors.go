package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

func respondWithError(logger *zap.Logger, w http.ResponseWriter, status int, userMsg, logMsg string, err error) {
	if err != nil {
		if logMsg == "" {
			logMsg = userMsg
		}
		logger.Error(logMsg, zap.Int("status", status), zap.Error(err))
	}

	http.Error(w, userMsg, status)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondJSONError(logger *zap.Logger, w http.ResponseWriter, status int, userMsg string, err error) {
	if err != nil && status >= http.StatusInternalServerError {
		logger.Error(userMsg, zap.Int("status", status), zap.Error(err))
	}
	respondJSON(w, status, map[string]string{"error": userMsg})
}
