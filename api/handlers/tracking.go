package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mitrahelp/mitrahelp-api/api"
	"github.com/mitrahelp/mitrahelp-api/config"
	"github.com/mitrahelp/mitrahelp-api/dispatch"
	"github.com/mitrahelp/mitrahelp-api/models"
	"github.com/mitrahelp/mitrahelp-api/tracking"
)

// Tracking exported for testing purposes
type Tracking struct {
	Service *tracking.Service
}

// ReportPositionRequest is the body of a position report.
type ReportPositionRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Heading   float64 `json:"heading,omitempty"`
	Speed     float64 `json:"speed,omitempty"`
	Accuracy  float64 `json:"accuracy,omitempty"`
}

// ReportStatusRequest is the body of a status report. Position is
// optional and recorded on the history entry when present.
type ReportStatusRequest struct {
	Status    models.EmergencyStatus `json:"status"`
	Latitude  *float64               `json:"latitude,omitempty"`
	Longitude *float64               `json:"longitude,omitempty"`
}

// ReportPositionHandler ingests a position sample from the assigned
// responder and returns the recomputed estimated arrival.
func (t Tracking) ReportPositionHandler(w http.ResponseWriter, r *http.Request) {
	emergencyID := mux.Vars(r)["emergency_id"]
	identity, ok := api.IdentityFromContext(r.Context())
	if !ok {
		config.ErrorStatus("missing caller identity", http.StatusUnauthorized, w, nil)
		return
	}

	var requestBody ReportPositionRequest
	if err := json.NewDecoder(r.Body).Decode(&requestBody); err != nil {
		config.ErrorCode(dispatch.CodeValidation, "failed to decode request body", http.StatusBadRequest, w, err)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	eta, err := t.Service.ReportPosition(ctx, emergencyID, identity.ID, tracking.PositionReport{
		Latitude:  requestBody.Latitude,
		Longitude: requestBody.Longitude,
		Heading:   requestBody.Heading,
		Speed:     requestBody.Speed,
		Accuracy:  requestBody.Accuracy,
	})
	if err != nil {
		dispatchError(w, "failed to report position", err)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"estimatedArrival": eta,
	})
}

// ReportStatusHandler advances the emergency lifecycle on behalf of the
// caller and relays the transition to the other party.
func (t Tracking) ReportStatusHandler(w http.ResponseWriter, r *http.Request) {
	emergencyID := mux.Vars(r)["emergency_id"]
	identity, ok := api.IdentityFromContext(r.Context())
	if !ok {
		config.ErrorStatus("missing caller identity", http.StatusUnauthorized, w, nil)
		return
	}

	var requestBody ReportStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&requestBody); err != nil {
		config.ErrorCode(dispatch.CodeValidation, "failed to decode request body", http.StatusBadRequest, w, err)
		return
	}

	var report *tracking.PositionReport
	if requestBody.Latitude != nil && requestBody.Longitude != nil {
		report = &tracking.PositionReport{
			Latitude:  *requestBody.Latitude,
			Longitude: *requestBody.Longitude,
		}
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	em, err := t.Service.ReportStatus(ctx, emergencyID, identity.ID, requestBody.Status, report)
	if err != nil {
		dispatchError(w, "failed to report status", err)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"status":  em.Details.Status,
	})
}

// TrackingSnapshotHandler returns current positions, the estimated
// arrival and the status history to either party of the emergency.
func (t Tracking) TrackingSnapshotHandler(w http.ResponseWriter, r *http.Request) {
	emergencyID := mux.Vars(r)["emergency_id"]
	identity, ok := api.IdentityFromContext(r.Context())
	if !ok {
		config.ErrorStatus("missing caller identity", http.StatusUnauthorized, w, nil)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	snapshot, err := t.Service.Snapshot(ctx, emergencyID, identity.ID)
	if err != nil {
		dispatchError(w, "failed to get tracking data", err)
		return
	}

	b, err := json.Marshal(snapshot)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}
