package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/mitrahelp/mitrahelp-api/api"
	"github.com/mitrahelp/mitrahelp-api/config"
	"github.com/mitrahelp/mitrahelp-api/databases"
	"github.com/mitrahelp/mitrahelp-api/dispatch"
	"github.com/mitrahelp/mitrahelp-api/geo"
	"github.com/mitrahelp/mitrahelp-api/models"
)

// Emergency exported for testing purposes
type Emergency struct {
	DB          databases.EmergencyDatabase
	Coordinator *dispatch.Coordinator
}

// CreateEmergencyRequest is the body of the create-emergency call.
type CreateEmergencyRequest struct {
	Type        models.EmergencyType `json:"type"`
	Description string               `json:"description"`
	Latitude    float64              `json:"latitude"`
	Longitude   float64              `json:"longitude"`
	Address     string               `json:"address"`
}

// CreateEmergencyHandler creates a new emergency and starts candidate
// discovery. The response does not wait for notification delivery.
func (e Emergency) CreateEmergencyHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := api.IdentityFromContext(r.Context())
	if !ok {
		config.ErrorStatus("missing caller identity", http.StatusUnauthorized, w, nil)
		return
	}

	var requestBody CreateEmergencyRequest
	if err := json.NewDecoder(r.Body).Decode(&requestBody); err != nil {
		config.ErrorCode(dispatch.CodeValidation, "failed to decode request body", http.StatusBadRequest, w, err)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	result, err := e.Coordinator.CreateEmergency(ctx, dispatch.CreateInput{
		RequesterID:   identity.ID,
		RequesterName: identity.Name,
		Type:          requestBody.Type,
		Description:   requestBody.Description,
		Latitude:      requestBody.Latitude,
		Longitude:     requestBody.Longitude,
		Address:       requestBody.Address,
	})
	if err != nil {
		dispatchError(w, "failed to create emergency", err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"requestId":       result.Emergency.ID,
		"candidateCounts": result.Counts,
		"emergency":       result.Emergency,
	})
}

// EmergencyByIDHandler returns an emergency by ID
func (e Emergency) EmergencyByIDHandler(w http.ResponseWriter, r *http.Request) {
	emergencyID := mux.Vars(r)["emergency_id"]

	zap.S().Debugf("emergency_id: %v", emergencyID)

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	em, err := e.Coordinator.States.Get(ctx, emergencyID)
	if err != nil {
		dispatchError(w, "failed to get emergency by ID", err)
		return
	}

	b, err := json.Marshal(em)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// AcceptEmergencyHandler binds the calling responder to the emergency.
// Of N concurrent accepts exactly one succeeds; the rest get a Conflict.
func (e Emergency) AcceptEmergencyHandler(w http.ResponseWriter, r *http.Request) {
	emergencyID := mux.Vars(r)["emergency_id"]
	identity, ok := api.IdentityFromContext(r.Context())
	if !ok {
		config.ErrorStatus("missing caller identity", http.StatusUnauthorized, w, nil)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	em, err := e.Coordinator.Accept(ctx, emergencyID, identity.ID, identity.Name, identity.Role)
	if err != nil {
		dispatchError(w, "failed to accept emergency", err)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":   true,
		"emergency": em,
	})
}

// NearbyEmergenciesHandler returns open emergencies within a radius of
// the caller-provided point, for responder work lists.
func (e Emergency) NearbyEmergenciesHandler(w http.ResponseWriter, r *http.Request) {
	latitude, errLat := strconv.ParseFloat(r.URL.Query().Get("latitude"), 64)
	longitude, errLng := strconv.ParseFloat(r.URL.Query().Get("longitude"), 64)
	if errLat != nil || errLng != nil {
		config.ErrorCode(dispatch.CodeValidation, "latitude and longitude are required", http.StatusBadRequest, w, nil)
		return
	}
	center := geo.Point{Longitude: longitude, Latitude: latitude}
	if !center.Valid() {
		config.ErrorCode(dispatch.CodeValidation, "coordinates out of range", http.StatusBadRequest, w, nil)
		return
	}
	radius := float64(geo.DefaultCurrentRadiusMeters)
	if v := r.URL.Query().Get("radius"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil && parsed > 0 {
			radius = parsed
		}
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	dbResp, err := e.DB.Find(ctx, bson.M{"emergency.status": models.StatusSearching})
	if err != nil {
		config.ErrorStatus("failed to get open emergencies", http.StatusNotFound, w, err)
		return
	}

	nearby := []models.Emergency{}
	for _, em := range dbResp {
		p := geo.Point{Longitude: em.Details.Location.Longitude(), Latitude: em.Details.Location.Latitude()}
		if geo.Distance(center, p) <= radius {
			nearby = append(nearby, em)
		}
	}

	b, err := json.Marshal(nearby)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// AssignedEmergenciesHandler returns the emergencies bound to the
// calling responder.
func (e Emergency) AssignedEmergenciesHandler(w http.ResponseWriter, r *http.Request) {
	e.listByFilterField(w, r, "emergency.assignedResponder")
}

// UserEmergenciesHandler returns the emergencies raised by the caller.
func (e Emergency) UserEmergenciesHandler(w http.ResponseWriter, r *http.Request) {
	e.listByFilterField(w, r, "emergency.requesterID")
}

func (e Emergency) listByFilterField(w http.ResponseWriter, r *http.Request, field string) {
	identity, ok := api.IdentityFromContext(r.Context())
	if !ok {
		config.ErrorStatus("missing caller identity", http.StatusUnauthorized, w, nil)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	dbResp, err := e.DB.Find(ctx, bson.M{field: identity.ID})
	if err != nil {
		config.ErrorStatus("failed to get emergencies", http.StatusNotFound, w, err)
		return
	}
	if len(dbResp) == 0 {
		dbResp = []models.Emergency{}
	}

	b, err := json.Marshal(dbResp)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// dispatchError maps dispatch taxonomy errors onto HTTP statuses with
// their stable codes; anything else is a plain 500.
func dispatchError(w http.ResponseWriter, message string, err error) {
	code := dispatch.CodeFor(err)
	status := http.StatusInternalServerError
	switch code {
	case dispatch.CodeValidation:
		status = http.StatusBadRequest
	case dispatch.CodeNotFound:
		status = http.StatusNotFound
	case dispatch.CodeConflict:
		status = http.StatusConflict
	case dispatch.CodeAuthorization:
		status = http.StatusForbidden
	case dispatch.CodeUpstream:
		status = http.StatusServiceUnavailable
	}
	config.ErrorCode(code, message, status, w, err)
}
