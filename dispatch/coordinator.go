package dispatch

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/mitrahelp/mitrahelp-api/databases"
	"github.com/mitrahelp/mitrahelp-api/geo"
	"github.com/mitrahelp/mitrahelp-api/models"
	"github.com/mitrahelp/mitrahelp-api/realtime"
)

// Locator answers radius queries against the in-memory position index.
type Locator interface {
	Query(center geo.Point, radiusMeters float64, attr geo.Attribute, filter geo.Filter) []string
}

// CreateInput carries a validated-on-entry emergency creation request.
type CreateInput struct {
	RequesterID   string
	RequesterName string
	Type          models.EmergencyType
	Description   string
	Latitude      float64
	Longitude     float64
	Address       string
}

// CandidateCounts reports how many candidates each locator query found
// and the size of the deduplicated union.
type CandidateCounts struct {
	ByCurrentLocation int `json:"byCurrentLocation"`
	ByHomeLocation    int `json:"byHomeLocation"`
	Total             int `json:"total"`
}

// CreateResult is returned to the creation caller before fanout finishes.
type CreateResult struct {
	Emergency *models.Emergency `json:"emergency"`
	Counts    CandidateCounts   `json:"candidateCounts"`
}

// Coordinator orchestrates emergency creation and acceptance. It queries
// the locator twice with different radii, merges the candidate sets with
// per-candidate provenance, and hands the union to the fanout without
// waiting for delivery.
type Coordinator struct {
	DB        databases.EmergencyDatabase
	Locator   Locator
	States    *StateMachine
	Fanout    *Fanout
	Publisher realtime.Publisher

	// Radii in meters. Zero values fall back to the defaults.
	CurrentRadius float64
	HomeRadius    float64

	Now func() time.Time
}

func (c *Coordinator) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Coordinator) radii() (float64, float64) {
	cur, home := c.CurrentRadius, c.HomeRadius
	if cur <= 0 {
		cur = geo.DefaultCurrentRadiusMeters
	}
	if home <= 0 {
		home = geo.DefaultHomeRadiusMeters
	}
	return cur, home
}

// CreateEmergency validates the request, persists it in Searching state,
// discovers candidates through both locator attributes and kicks off the
// notification fanout. It returns as soon as the request and its merged
// candidate set are stored; fanout delivery is best effort and decoupled.
func (c *Coordinator) CreateEmergency(ctx context.Context, in CreateInput) (*CreateResult, error) {
	if !in.Type.IsValid() {
		return nil, fmt.Errorf("%w: unknown emergency type %q", ErrValidation, string(in.Type))
	}
	center := geo.Point{Longitude: in.Longitude, Latitude: in.Latitude}
	if !center.Valid() {
		return nil, fmt.Errorf("%w: coordinates out of range (%v, %v)", ErrValidation, in.Latitude, in.Longitude)
	}

	now := primitive.NewDateTimeFromTime(c.now())
	oid := primitive.NewObjectID()
	initial := models.StatusEntry{
		ID:      uuid.New().String(),
		Status:  models.StatusSearching,
		ActorID: in.RequesterID,
		Position: &models.Position{
			Longitude:  in.Longitude,
			Latitude:   in.Latitude,
			ReportedAt: now,
		},
		Timestamp: now,
	}
	details := models.EmergencyDetails{
		RequesterID:   in.RequesterID,
		RequesterName: in.RequesterName,
		Type:          in.Type,
		Description:   in.Description,
		Location:      models.NewLocation(in.Longitude, in.Latitude, in.Address),
		Status:        models.StatusSearching,
		Tracking: models.TrackingDetails{
			CurrentPositions: map[string]models.Position{},
			StatusHistory:    []models.StatusEntry{initial},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	doc := bson.M{"_id": oid, "emergency": details, "__v": 0}
	if _, err := c.DB.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("%w: insert emergency: %v", ErrUpstream, err)
	}

	cur, home := c.radii()
	filter := geo.Available(models.RoleResponder)
	byCurrent := c.Locator.Query(center, cur, geo.AttrCurrent, filter)
	byHome := c.Locator.Query(center, home, geo.AttrHome, filter)
	candidates := mergeCandidates(byCurrent, byHome, in.RequesterID, now)

	update := bson.M{"$set": bson.M{
		"emergency.notifiedResponders": candidates,
		"emergency.updatedAt":          now,
	}}
	em, err := c.DB.UpdateOne(ctx, bson.M{"_id": oid}, update)
	if err != nil {
		return nil, fmt.Errorf("%w: store notified responders: %v", ErrUpstream, err)
	}

	if c.Fanout != nil {
		// Decoupled from the creation response: failures are reported
		// per candidate and logged, never surfaced to the caller.
		go c.Fanout.Notify(context.Background(), em, candidates)
		go c.Fanout.NotifyContacts(context.Background(), em)
	}

	counts := CandidateCounts{
		ByCurrentLocation: len(byCurrent),
		ByHomeLocation:    len(byHome),
		Total:             len(candidates),
	}
	zap.S().Infow("emergency created",
		"emergencyID", em.ID,
		"type", in.Type,
		"byCurrentLocation", counts.ByCurrentLocation,
		"byHomeLocation", counts.ByHomeLocation,
		"candidates", counts.Total,
	)
	return &CreateResult{Emergency: em, Counts: counts}, nil
}

// mergeCandidates unions the two query results, tagging every candidate
// with the source(s) that matched it. The requester never becomes a
// candidate for their own emergency.
func mergeCandidates(byCurrent, byHome []string, requesterID string, at primitive.DateTime) []models.NotifiedResponder {
	tags := make(map[string]models.Provenance)
	for _, id := range byCurrent {
		if id == requesterID {
			continue
		}
		tags[id] = models.MatchedByCurrent
	}
	for _, id := range byHome {
		if id == requesterID {
			continue
		}
		if _, ok := tags[id]; ok {
			tags[id] = models.MatchedByBoth
		} else {
			tags[id] = models.MatchedByHome
		}
	}

	ids := make([]string, 0, len(tags))
	for id := range tags {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	merged := make([]models.NotifiedResponder, 0, len(ids))
	for _, id := range ids {
		merged = append(merged, models.NotifiedResponder{ID: id, MatchedBy: tags[id], Notified: at})
	}
	return merged
}

// Accept resolves one winner among concurrent acceptances, then tells the
// requester who is coming. Only responder identities may accept.
func (c *Coordinator) Accept(ctx context.Context, emergencyID, responderID, responderName, responderRole string) (*models.Emergency, error) {
	if responderRole != models.RoleResponder {
		return nil, fmt.Errorf("%w: only responders may accept, caller role %q", ErrUnauthorized, responderRole)
	}
	em, err := c.States.Accept(ctx, emergencyID, responderID)
	if err != nil {
		return nil, err
	}

	if c.Publisher != nil {
		c.Publisher.Publish(em.Details.RequesterID, realtime.EventEmergencyAccepted, map[string]interface{}{
			"emergencyId":   em.ID,
			"responderId":   responderID,
			"responderName": responderName,
		})
	}
	zap.S().Infow("emergency accepted", "emergencyID", em.ID, "responderID", responderID)
	return em, nil
}
