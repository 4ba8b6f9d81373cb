package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"
	"quiz-gateway/internal/domain"
)

// ServeNotification pushes an ad hoc payload to one live connection on this instance.
func (g *Gateway) ServeNotification(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	var req notificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorPayload{Message: "malformed request body"})
		return
	}
	if err := g.validate.Struct(req); err != nil || isJSONNull(req.Data) {
		writeJSON(w, http.StatusBadRequest, errorPayload{Message: "connection_id and data are required"})
		return
	}

	err := g.hub.SendTo(req.ConnectionID, domain.EventNotification, notificationPayload{Data: req.Data})
	switch {
	case errors.Is(err, ErrConnectionNotFound):
		writeJSON(w, http.StatusNotFound, errorPayload{Message: err.Error()})
		return
	case err != nil:
		g.log.WithError(err).Error("notification delivery failed")
		writeJSON(w, http.StatusInternalServerError, errorPayload{Message: "internal error"})
		return
	}
	g.log.WithFields(logrus.Fields{"conn_id": req.ConnectionID}).Debug("notification delivered")
	writeJSON(w, http.StatusOK, map[string]string{"status": "delivered"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func isJSONNull(data json.RawMessage) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
