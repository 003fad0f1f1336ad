package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/mitrahelp/mitrahelp-api/databases"
	"github.com/mitrahelp/mitrahelp-api/models"
)

// StateMachine enforces the emergency lifecycle against the store. Every
// mutation is a conditional update keyed on the previously read status,
// so concurrent writers resolve to one winner without a process-wide lock.
type StateMachine struct {
	DB databases.EmergencyDatabase

	// Now is the clock used for timestamps, replaceable in tests.
	Now func() time.Time
}

func (s *StateMachine) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func emergencyIDFilter(emergencyID string) (bson.M, error) {
	oid, err := primitive.ObjectIDFromHex(emergencyID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid emergency id %q", ErrNotFound, emergencyID)
	}
	return bson.M{"_id": oid}, nil
}

// Get loads one emergency by hex id.
func (s *StateMachine) Get(ctx context.Context, emergencyID string) (*models.Emergency, error) {
	filter, err := emergencyIDFilter(emergencyID)
	if err != nil {
		return nil, err
	}
	em, err := s.DB.FindOne(ctx, filter)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, emergencyID)
		}
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return em, nil
}

// Accept binds responderID to the emergency. It succeeds only while the
// stored status is still Searching: the update filter matches on that
// status, so of N concurrent accepts exactly one matches a document and
// the rest observe a conflict. The requester can never bind themselves
// to their own emergency.
func (s *StateMachine) Accept(ctx context.Context, emergencyID, responderID string) (*models.Emergency, error) {
	filter, err := emergencyIDFilter(emergencyID)
	if err != nil {
		return nil, err
	}

	now := primitive.NewDateTimeFromTime(s.now())
	entry := models.StatusEntry{
		ID:        uuid.New().String(),
		Status:    models.StatusAccepted,
		ActorID:   responderID,
		Timestamp: now,
	}

	condFilter := bson.M{
		"_id":                   filter["_id"],
		"emergency.status":      models.StatusSearching,
		"emergency.requesterID": bson.M{"$ne": responderID},
	}
	update := bson.M{
		"$set": bson.M{
			"emergency.status":            models.StatusAccepted,
			"emergency.assignedResponder": responderID,
			"emergency.updatedAt":         now,
		},
		"$push": bson.M{"emergency.tracking.statusHistory": entry},
	}

	matched, err := s.DB.UpdateOneConditional(ctx, condFilter, update)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if !matched {
		// Lost the race, self-accept, or the id is unknown. Re-read to
		// tell them apart and to name the current status in the conflict.
		em, gerr := s.Get(ctx, emergencyID)
		if gerr != nil {
			return nil, gerr
		}
		if em.Details.RequesterID == responderID {
			return nil, fmt.Errorf("%w: requester cannot accept their own emergency", ErrUnauthorized)
		}
		return nil, fmt.Errorf("%w: cannot accept emergency in status %s", ErrConflict, em.Details.Status)
	}
	return s.Get(ctx, emergencyID)
}

// Advance moves the emergency to newStatus on behalf of actorID,
// appending one status-history entry. The transition must be legal, the
// actor must be the requester or the assigned responder, and terminal
// emergencies reject every mutation.
func (s *StateMachine) Advance(ctx context.Context, emergencyID, actorID string, newStatus models.EmergencyStatus, position *models.Position) (*models.Emergency, error) {
	if !newStatus.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, string(newStatus))
	}
	if newStatus == models.StatusSearching || newStatus == models.StatusAccepted {
		// Searching is only ever the initial state; Accepted is reached
		// through Accept, which also binds the responder.
		return nil, fmt.Errorf("%w: status %s cannot be set directly", ErrValidation, newStatus)
	}

	em, err := s.Get(ctx, emergencyID)
	if err != nil {
		return nil, err
	}

	current := em.Details.Status
	if current.IsTerminal() {
		return nil, fmt.Errorf("%w: emergency already %s", ErrConflict, current)
	}
	if !current.CanTransitionTo(newStatus) {
		return nil, fmt.Errorf("%w: illegal transition %s -> %s", ErrConflict, current, newStatus)
	}
	if err := authorizeTransition(em, actorID, newStatus); err != nil {
		return nil, err
	}

	now := primitive.NewDateTimeFromTime(s.now())
	entry := models.StatusEntry{
		ID:        uuid.New().String(),
		Status:    newStatus,
		ActorID:   actorID,
		Position:  position,
		Timestamp: now,
	}

	filter, _ := emergencyIDFilter(emergencyID)
	condFilter := bson.M{"_id": filter["_id"], "emergency.status": current}
	update := bson.M{
		"$set": bson.M{
			"emergency.status":    newStatus,
			"emergency.updatedAt": now,
		},
		"$push": bson.M{"emergency.tracking.statusHistory": entry},
	}

	matched, err := s.DB.UpdateOneConditional(ctx, condFilter, update)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if !matched {
		return nil, fmt.Errorf("%w: status changed concurrently, no longer %s", ErrConflict, current)
	}
	return s.Get(ctx, emergencyID)
}

// authorizeTransition applies the per-actor rules: the requester may only
// cancel or complete; the assigned responder drives OnTheWay/Arrived and
// may complete.
func authorizeTransition(em *models.Emergency, actorID string, newStatus models.EmergencyStatus) error {
	d := em.Details
	switch actorID {
	case d.RequesterID:
		if newStatus != models.StatusCancelled && newStatus != models.StatusCompleted {
			return fmt.Errorf("%w: requester may only cancel or complete", ErrUnauthorized)
		}
	case d.AssignedResponder:
		if d.AssignedResponder == "" {
			return fmt.Errorf("%w: no responder assigned", ErrUnauthorized)
		}
		if newStatus == models.StatusCancelled {
			return fmt.Errorf("%w: only the requester may cancel", ErrUnauthorized)
		}
	default:
		return fmt.Errorf("%w: actor %s", ErrUnauthorized, actorID)
	}
	return nil
}

// Counterpart resolves "the other party" of an emergency relative to the
// acting identity: the requester when the assigned responder acts, the
// assigned responder otherwise. Empty when no responder is bound yet.
func Counterpart(em *models.Emergency, actorID string) string {
	if actorID == em.Details.AssignedResponder {
		return em.Details.RequesterID
	}
	return em.Details.AssignedResponder
}
