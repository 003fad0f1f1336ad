package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// EmergencyType classifies an emergency request.
type EmergencyType string

// Emergency types accepted on creation.
const (
	EmergencyTypeMedical  EmergencyType = "Medical"
	EmergencyTypeAccident EmergencyType = "Accident"
	EmergencyTypeBlood    EmergencyType = "Blood"
	EmergencyTypeDisaster EmergencyType = "Disaster"
	EmergencyTypeOther    EmergencyType = "Other"
)

// IsValid reports whether t is one of the enumerated emergency types.
func (t EmergencyType) IsValid() bool {
	switch t {
	case EmergencyTypeMedical, EmergencyTypeAccident, EmergencyTypeBlood, EmergencyTypeDisaster, EmergencyTypeOther:
		return true
	}
	return false
}

// EmergencyStatus is the lifecycle state of an emergency request.
type EmergencyStatus string

// Lifecycle states. Searching is the initial state; Completed and
// Cancelled are terminal.
const (
	StatusSearching EmergencyStatus = "Searching"
	StatusAccepted  EmergencyStatus = "Accepted"
	StatusOnTheWay  EmergencyStatus = "OnTheWay"
	StatusArrived   EmergencyStatus = "Arrived"
	StatusCompleted EmergencyStatus = "Completed"
	StatusCancelled EmergencyStatus = "Cancelled"
)

// IsValid reports whether s is a known status value.
func (s EmergencyStatus) IsValid() bool {
	switch s {
	case StatusSearching, StatusAccepted, StatusOnTheWay, StatusArrived, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are permitted from s.
func (s EmergencyStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransitionTo reports whether the move from s to next is legal.
// The forward chain is Searching -> Accepted -> OnTheWay -> Arrived ->
// Completed, and any non-terminal state may move to Cancelled.
func (s EmergencyStatus) CanTransitionTo(next EmergencyStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if next == StatusCancelled {
		return true
	}
	switch s {
	case StatusSearching:
		return next == StatusAccepted
	case StatusAccepted:
		return next == StatusOnTheWay
	case StatusOnTheWay:
		return next == StatusArrived
	case StatusArrived:
		return next == StatusCompleted
	}
	return false
}

// Provenance marks which locator query matched a notified responder.
type Provenance string

// Provenance tags for notified responders.
const (
	MatchedByCurrent Provenance = "current"
	MatchedByHome    Provenance = "home"
	MatchedByBoth    Provenance = "both"
)

// Location is a GeoJSON-style point with a display address.
// Coordinates are ordered [longitude, latitude].
type Location struct {
	Type        string    `json:"type" bson:"type"`
	Coordinates []float64 `json:"coordinates" bson:"coordinates"`
	Address     string    `json:"address,omitempty" bson:"address,omitempty"`
}

// NewLocation builds a point location from a longitude/latitude pair.
func NewLocation(longitude, latitude float64, address string) Location {
	return Location{
		Type:        "Point",
		Coordinates: []float64{longitude, latitude},
		Address:     address,
	}
}

// Longitude returns the first coordinate, or 0 if the point is absent.
func (l Location) Longitude() float64 {
	if len(l.Coordinates) < 2 {
		return 0
	}
	return l.Coordinates[0]
}

// Latitude returns the second coordinate, or 0 if the point is absent.
func (l Location) Latitude() float64 {
	if len(l.Coordinates) < 2 {
		return 0
	}
	return l.Coordinates[1]
}

// IsZero reports whether the location is absent or sits at the (0,0)
// origin, which the locator treats as "unknown".
func (l Location) IsZero() bool {
	return len(l.Coordinates) < 2 || (l.Coordinates[0] == 0 && l.Coordinates[1] == 0)
}

// Emergency holds the structure for the emergencies collection in mongo
type Emergency struct {
	ID      string           `json:"_id" bson:"_id"`
	Details EmergencyDetails `json:"emergency" bson:"emergency"`
	Version int32            `json:"__v" bson:"__v"`
}

// EmergencyDetails holds the inner emergency structure as defined in the
// emergencies collection in mongo
type EmergencyDetails struct {
	RequesterID        string               `json:"requesterID" bson:"requesterID"`
	RequesterName      string               `json:"requesterName" bson:"requesterName"`
	Type               EmergencyType        `json:"type" bson:"type"`
	Description        string               `json:"description" bson:"description"`
	Location           Location             `json:"location" bson:"location"`
	Status             EmergencyStatus      `json:"status" bson:"status"`
	AssignedResponder  string               `json:"assignedResponder,omitempty" bson:"assignedResponder,omitempty"`
	NotifiedResponders []NotifiedResponder  `json:"notifiedResponders" bson:"notifiedResponders"`
	Tracking           TrackingDetails      `json:"tracking" bson:"tracking"`
	CreatedAt          primitive.DateTime   `json:"createdAt" bson:"createdAt"`
	UpdatedAt          primitive.DateTime   `json:"updatedAt" bson:"updatedAt"`
}

// NotifiedResponder records one candidate and which locator query found it.
type NotifiedResponder struct {
	ID        string             `json:"id" bson:"id"`
	MatchedBy Provenance         `json:"matchedBy" bson:"matchedBy"`
	Notified  primitive.DateTime `json:"notifiedAt" bson:"notifiedAt"`
}

// TrackingDetails carries the live-tracking substructure of an emergency.
// CurrentPositions maps a responder id to its single latest report,
// StatusHistory is append-only.
type TrackingDetails struct {
	CurrentPositions map[string]Position `json:"currentPositions" bson:"currentPositions"`
	StatusHistory    []StatusEntry       `json:"statusHistory" bson:"statusHistory"`
	EstimatedArrival *time.Time          `json:"estimatedArrival" bson:"estimatedArrival,omitempty"`
}

// Position is a single reported position of a responder.
type Position struct {
	Longitude  float64            `json:"longitude" bson:"longitude"`
	Latitude   float64            `json:"latitude" bson:"latitude"`
	Heading    float64            `json:"heading,omitempty" bson:"heading,omitempty"`
	Speed      float64            `json:"speed,omitempty" bson:"speed,omitempty"`
	Accuracy   float64            `json:"accuracy,omitempty" bson:"accuracy,omitempty"`
	ReportedAt primitive.DateTime `json:"reportedAt" bson:"reportedAt"`
}

// StatusEntry is one immutable row of an emergency's status history.
type StatusEntry struct {
	ID        string             `json:"_id" bson:"_id"`
	Status    EmergencyStatus    `json:"status" bson:"status"`
	ActorID   string             `json:"actorID" bson:"actorID"`
	Position  *Position          `json:"position,omitempty" bson:"position,omitempty"`
	Timestamp primitive.DateTime `json:"timestamp" bson:"timestamp"`
}
