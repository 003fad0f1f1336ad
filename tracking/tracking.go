// Package tracking ingests position reports from the responder bound to
// an emergency, maintains the latest position and status history, derives
// the estimated arrival time and relays updates to the other party.
package tracking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/mitrahelp/mitrahelp-api/databases"
	"github.com/mitrahelp/mitrahelp-api/dispatch"
	"github.com/mitrahelp/mitrahelp-api/geo"
	"github.com/mitrahelp/mitrahelp-api/models"
	"github.com/mitrahelp/mitrahelp-api/realtime"
)

// FallbackSpeedMPS is assumed when a report carries no positive speed:
// walking pace.
const FallbackSpeedMPS = 1.4

// Service serializes tracking mutations per emergency id and relays every
// accepted update to the counterpart's private channel.
type Service struct {
	DB        databases.EmergencyDatabase
	States    *dispatch.StateMachine
	Publisher realtime.Publisher

	Now func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewService wires a tracking service over the emergency store.
func NewService(db databases.EmergencyDatabase, states *dispatch.StateMachine, publisher realtime.Publisher) *Service {
	return &Service{
		DB:        db,
		States:    states,
		Publisher: publisher,
		locks:     make(map[string]*sync.Mutex),
	}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// lockFor returns the per-emergency mutex, creating it on first use.
// Different emergencies proceed fully in parallel; holding the lock
// through the relay keeps position and status events ordered for a
// single recipient.
func (s *Service) lockFor(emergencyID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locks == nil {
		s.locks = make(map[string]*sync.Mutex)
	}
	l, ok := s.locks[emergencyID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[emergencyID] = l
	}
	return l
}

// PositionReport is one inbound position sample from the bound responder.
type PositionReport struct {
	Longitude float64
	Latitude  float64
	Heading   float64
	Speed     float64
	Accuracy  float64
}

// ReportPosition replaces the responder's entry in currentPositions,
// recomputes the estimated arrival and relays a location event to the
// other party. Only the currently bound responder may report.
func (s *Service) ReportPosition(ctx context.Context, emergencyID, responderID string, report PositionReport) (*time.Time, error) {
	p := geo.Point{Longitude: report.Longitude, Latitude: report.Latitude}
	if !p.Valid() {
		return nil, fmt.Errorf("%w: coordinates out of range (%v, %v)", dispatch.ErrValidation, report.Latitude, report.Longitude)
	}

	lock := s.lockFor(emergencyID)
	lock.Lock()
	defer lock.Unlock()

	em, err := s.States.Get(ctx, emergencyID)
	if err != nil {
		return nil, err
	}
	if em.Details.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: emergency already %s", dispatch.ErrConflict, em.Details.Status)
	}
	if em.Details.AssignedResponder == "" || em.Details.AssignedResponder != responderID {
		return nil, fmt.Errorf("%w: only the assigned responder reports positions", dispatch.ErrUnauthorized)
	}

	now := s.now()
	position := models.Position{
		Longitude:  report.Longitude,
		Latitude:   report.Latitude,
		Heading:    report.Heading,
		Speed:      report.Speed,
		Accuracy:   report.Accuracy,
		ReportedAt: primitive.NewDateTimeFromTime(now),
	}
	eta := EstimateArrival(now, p, geo.Point{
		Longitude: em.Details.Location.Longitude(),
		Latitude:  em.Details.Location.Latitude(),
	}, report.Speed)

	oid, _ := primitive.ObjectIDFromHex(em.ID)
	update := bson.M{"$set": bson.M{
		"emergency.tracking.currentPositions." + responderID: position,
		"emergency.tracking.estimatedArrival":                eta,
		"emergency.updatedAt":                                primitive.NewDateTimeFromTime(now),
	}}
	if _, err := s.DB.UpdateOne(ctx, bson.M{"_id": oid}, update); err != nil {
		return nil, fmt.Errorf("%w: store position: %v", dispatch.ErrUpstream, err)
	}

	s.relay(em, responderID, realtime.EventLocationUpdate, map[string]interface{}{
		"emergencyId":      em.ID,
		"responderId":      responderID,
		"latitude":         report.Latitude,
		"longitude":        report.Longitude,
		"heading":          report.Heading,
		"speed":            report.Speed,
		"accuracy":         report.Accuracy,
		"estimatedArrival": eta,
	})
	return &eta, nil
}

// ReportStatus advances the emergency through the state machine and
// relays the transition to the other party.
func (s *Service) ReportStatus(ctx context.Context, emergencyID, actorID string, status models.EmergencyStatus, report *PositionReport) (*models.Emergency, error) {
	lock := s.lockFor(emergencyID)
	lock.Lock()
	defer lock.Unlock()

	var position *models.Position
	if report != nil {
		position = &models.Position{
			Longitude:  report.Longitude,
			Latitude:   report.Latitude,
			ReportedAt: primitive.NewDateTimeFromTime(s.now()),
		}
	}

	em, err := s.States.Advance(ctx, emergencyID, actorID, status, position)
	if err != nil {
		return nil, err
	}

	s.relay(em, actorID, realtime.EventStatusUpdate, map[string]interface{}{
		"emergencyId": em.ID,
		"status":      status,
		"actorId":     actorID,
	})
	zap.S().Infow("emergency status reported", "emergencyID", em.ID, "status", status, "actorID", actorID)
	return em, nil
}

// Snapshot returns the tracking substructure to the requester or the
// bound responder.
func (s *Service) Snapshot(ctx context.Context, emergencyID, callerID string) (*models.TrackingDetails, error) {
	em, err := s.States.Get(ctx, emergencyID)
	if err != nil {
		return nil, err
	}
	if callerID != em.Details.RequesterID && callerID != em.Details.AssignedResponder {
		return nil, fmt.Errorf("%w: tracking is private to the two parties", dispatch.ErrUnauthorized)
	}
	t := em.Details.Tracking
	if t.CurrentPositions == nil {
		t.CurrentPositions = map[string]models.Position{}
	}
	return &t, nil
}

// relay publishes the event to the acting party's counterpart, resolved
// dynamically per call.
func (s *Service) relay(em *models.Emergency, actorID, event string, payload interface{}) {
	if s.Publisher == nil {
		return
	}
	recipient := dispatch.Counterpart(em, actorID)
	if recipient == "" {
		return
	}
	s.Publisher.Publish(recipient, event, payload)
}

// EstimateArrival derives the arrival time from the straight-line
// distance between the responder and the emergency. A non-positive
// reported speed falls back to pedestrian pace.
func EstimateArrival(now time.Time, from, to geo.Point, speedMPS float64) time.Time {
	if speedMPS <= 0 {
		speedMPS = FallbackSpeedMPS
	}
	seconds := geo.Distance(from, to) / speedMPS
	return now.Add(time.Duration(seconds * float64(time.Second)))
}
