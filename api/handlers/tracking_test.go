package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/mitrahelp/mitrahelp-api/api/handlers"
	"github.com/mitrahelp/mitrahelp-api/databases"
	"github.com/mitrahelp/mitrahelp-api/databases/mocks"
	"github.com/mitrahelp/mitrahelp-api/dispatch"
	"github.com/mitrahelp/mitrahelp-api/models"
	"github.com/mitrahelp/mitrahelp-api/realtime"
	"github.com/mitrahelp/mitrahelp-api/tracking"
)

func trackingServiceOver(db databases.EmergencyDatabase) *tracking.Service {
	return tracking.NewService(db, &dispatch.StateMachine{DB: db}, realtime.Noop{})
}

func acceptedEmergencyDB(emergencyID, requesterID, responderID string) databases.EmergencyDatabase {
	dbHelper := &mocks.DatabaseHelper{}
	collectionHelper := &mocks.CollectionHelper{}
	srHelper := &mocks.SingleResultHelper{}
	urHelper := &mocks.UpdateResultHelper{}

	urHelper.On("MatchedCount").Return(int64(1))
	collectionHelper.On("UpdateOne", mock.Anything, mock.Anything, mock.Anything).Return(urHelper, nil)
	srHelper.On("Decode", mock.Anything).
		Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(0).(**models.Emergency)
		(*arg).ID = emergencyID
		(*arg).Details = models.EmergencyDetails{
			RequesterID:       requesterID,
			Status:            models.StatusAccepted,
			AssignedResponder: responderID,
			Location:          models.NewLocation(106.8456, -6.2088, "Jakarta"),
		}
	})
	collectionHelper.On("FindOne", mock.Anything, mock.Anything).Return(srHelper)
	dbHelper.On("Collection", "emergencies").Return(collectionHelper)

	return databases.NewEmergencyDatabase(dbHelper)
}

func TestTracking_ReportPositionHandler(t *testing.T) {
	emergencyID := primitive.NewObjectID().Hex()
	db := acceptedEmergencyDB(emergencyID, "requester-1", "responder-1")

	body := bytes.NewBufferString(`{"latitude":-6.19,"longitude":106.8456,"speed":12.5}`)
	req, err := http.NewRequest("POST", "/api/v1/emergency/"+emergencyID+"/location", body)
	assert.NoError(t, err)
	req = mux.SetURLVars(req, map[string]string{"emergency_id": emergencyID})
	req = authenticated(req, "responder-1", "Budi", models.RoleResponder)

	rr := httptest.NewRecorder()
	h := handlers.Tracking{Service: trackingServiceOver(db)}
	http.HandlerFunc(h.ReportPositionHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	var resp map[string]interface{}
	assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["estimatedArrival"])
}

func TestTracking_ReportPositionHandler_WrongResponder(t *testing.T) {
	emergencyID := primitive.NewObjectID().Hex()
	db := acceptedEmergencyDB(emergencyID, "requester-1", "responder-1")

	body := bytes.NewBufferString(`{"latitude":-6.19,"longitude":106.8456}`)
	req, err := http.NewRequest("POST", "/api/v1/emergency/"+emergencyID+"/location", body)
	assert.NoError(t, err)
	req = mux.SetURLVars(req, map[string]string{"emergency_id": emergencyID})
	req = authenticated(req, "responder-2", "Citra", models.RoleResponder)

	rr := httptest.NewRecorder()
	h := handlers.Tracking{Service: trackingServiceOver(db)}
	http.HandlerFunc(h.ReportPositionHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
	var resp models.ErrorMessageResponse
	assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, dispatch.CodeAuthorization, resp.Response.Code)
}

func TestTracking_ReportStatusHandler(t *testing.T) {
	emergencyID := primitive.NewObjectID().Hex()
	db := acceptedEmergencyDB(emergencyID, "requester-1", "responder-1")

	body := bytes.NewBufferString(`{"status":"OnTheWay","latitude":-6.19,"longitude":106.8456}`)
	req, err := http.NewRequest("PUT", "/api/v1/emergency/"+emergencyID+"/status", body)
	assert.NoError(t, err)
	req = mux.SetURLVars(req, map[string]string{"emergency_id": emergencyID})
	req = authenticated(req, "responder-1", "Budi", models.RoleResponder)

	rr := httptest.NewRecorder()
	h := handlers.Tracking{Service: trackingServiceOver(db)}
	http.HandlerFunc(h.ReportStatusHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	var resp map[string]interface{}
	assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["success"])
}

func TestTracking_ReportStatusHandler_IllegalTransition(t *testing.T) {
	emergencyID := primitive.NewObjectID().Hex()
	db := acceptedEmergencyDB(emergencyID, "requester-1", "responder-1")

	// Accepted -> Arrived skips OnTheWay
	body := bytes.NewBufferString(`{"status":"Arrived"}`)
	req, err := http.NewRequest("PUT", "/api/v1/emergency/"+emergencyID+"/status", body)
	assert.NoError(t, err)
	req = mux.SetURLVars(req, map[string]string{"emergency_id": emergencyID})
	req = authenticated(req, "responder-1", "Budi", models.RoleResponder)

	rr := httptest.NewRecorder()
	h := handlers.Tracking{Service: trackingServiceOver(db)}
	http.HandlerFunc(h.ReportStatusHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestTracking_TrackingSnapshotHandler_Privacy(t *testing.T) {
	emergencyID := primitive.NewObjectID().Hex()
	db := acceptedEmergencyDB(emergencyID, "requester-1", "responder-1")

	req, err := http.NewRequest("GET", "/api/v1/emergency/"+emergencyID+"/tracking", nil)
	assert.NoError(t, err)
	req = mux.SetURLVars(req, map[string]string{"emergency_id": emergencyID})
	req = authenticated(req, "stranger", "X", models.RoleRequester)

	rr := httptest.NewRecorder()
	h := handlers.Tracking{Service: trackingServiceOver(db)}
	http.HandlerFunc(h.TrackingSnapshotHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestTracking_TrackingSnapshotHandler(t *testing.T) {
	emergencyID := primitive.NewObjectID().Hex()
	db := acceptedEmergencyDB(emergencyID, "requester-1", "responder-1")

	req, err := http.NewRequest("GET", "/api/v1/emergency/"+emergencyID+"/tracking", nil)
	assert.NoError(t, err)
	req = mux.SetURLVars(req, map[string]string{"emergency_id": emergencyID})
	req = authenticated(req, "requester-1", "Adi", models.RoleRequester)

	rr := httptest.NewRecorder()
	h := handlers.Tracking{Service: trackingServiceOver(db)}
	http.HandlerFunc(h.TrackingSnapshotHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	var snap models.TrackingDetails
	assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &snap))
	assert.NotNil(t, snap.CurrentPositions)
}
