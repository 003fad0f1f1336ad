package handlers

import (
	"encoding/json"
	"net/http"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/mitrahelp/mitrahelp-api/api"
	"github.com/mitrahelp/mitrahelp-api/config"
	"github.com/mitrahelp/mitrahelp-api/databases"
	"github.com/mitrahelp/mitrahelp-api/dispatch"
	"github.com/mitrahelp/mitrahelp-api/geo"
	"github.com/mitrahelp/mitrahelp-api/models"
)

// Responder proxies profile writes that must keep the geospatial index
// current. The profile itself is owned by the identity/profile service.
type Responder struct {
	DB    databases.UserDatabase
	Index *geo.Index
}

// SetAvailabilityRequest flips a responder's availability flag.
type SetAvailabilityRequest struct {
	Available bool `json:"isAvailable"`
}

// UpdateLocationRequest carries a position write for one of the two
// indexed attributes.
type UpdateLocationRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address,omitempty"`
}

// SetAvailabilityHandler updates the caller's availability in the store
// and in both attribute indices.
func (re Responder) SetAvailabilityHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := api.IdentityFromContext(r.Context())
	if !ok {
		config.ErrorStatus("missing caller identity", http.StatusUnauthorized, w, nil)
		return
	}

	var requestBody SetAvailabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&requestBody); err != nil {
		config.ErrorCode(dispatch.CodeValidation, "failed to decode request body", http.StatusBadRequest, w, err)
		return
	}

	oid, err := primitive.ObjectIDFromHex(identity.ID)
	if err != nil {
		config.ErrorCode(dispatch.CodeValidation, "invalid caller id", http.StatusBadRequest, w, err)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	_, err = re.DB.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": bson.M{"user.isAvailable": requestBody.Available}})
	if err != nil {
		config.ErrorCode(dispatch.CodeUpstream, "failed to update availability", http.StatusServiceUnavailable, w, err)
		return
	}
	re.Index.SetAvailability(identity.ID, requestBody.Available)

	zap.S().Debugw("responder availability updated", "responderID", identity.ID, "available", requestBody.Available)
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{"success": true})
}

// UpdateLocationHandler writes the caller's live position.
func (re Responder) UpdateLocationHandler(w http.ResponseWriter, r *http.Request) {
	re.updateLocation(w, r, "user.location", geo.AttrCurrent)
}

// UpdateHomeLocationHandler writes the caller's permanent address point.
func (re Responder) UpdateHomeLocationHandler(w http.ResponseWriter, r *http.Request) {
	re.updateLocation(w, r, "user.permanentAddress", geo.AttrHome)
}

func (re Responder) updateLocation(w http.ResponseWriter, r *http.Request, field string, attr geo.Attribute) {
	identity, ok := api.IdentityFromContext(r.Context())
	if !ok {
		config.ErrorStatus("missing caller identity", http.StatusUnauthorized, w, nil)
		return
	}

	var requestBody UpdateLocationRequest
	if err := json.NewDecoder(r.Body).Decode(&requestBody); err != nil {
		config.ErrorCode(dispatch.CodeValidation, "failed to decode request body", http.StatusBadRequest, w, err)
		return
	}

	point := geo.Point{Longitude: requestBody.Longitude, Latitude: requestBody.Latitude}
	if !point.Valid() {
		config.ErrorCode(dispatch.CodeValidation, "coordinates out of range", http.StatusBadRequest, w, nil)
		return
	}

	oid, err := primitive.ObjectIDFromHex(identity.ID)
	if err != nil {
		config.ErrorCode(dispatch.CodeValidation, "invalid caller id", http.StatusBadRequest, w, err)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	location := models.NewLocation(requestBody.Longitude, requestBody.Latitude, requestBody.Address)
	user, err := re.DB.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": bson.M{field: location}})
	if err != nil {
		config.ErrorCode(dispatch.CodeUpstream, "failed to update location", http.StatusServiceUnavailable, w, err)
		return
	}

	re.Index.Upsert(identity.ID, attr, point, user.Details.Role, user.Details.Available)

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{"success": true})
}
