// Package scheduler runs the periodic background jobs: refreshing the
// in-memory geospatial index from the users collection and reporting on
// long-running searches. All dispatch work itself is event-driven; the
// jobs here only keep caches warm and logs honest.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/mitrahelp/mitrahelp-api/databases"
	"github.com/mitrahelp/mitrahelp-api/geo"
	"github.com/mitrahelp/mitrahelp-api/models"
)

// staleSearchAge is how long an emergency may sit in Searching before the
// sweep reports it.
const staleSearchAge = 24 * time.Hour

// Scheduler handles the periodic background jobs
type Scheduler struct {
	cron       *cron.Cron
	UDB        databases.UserDatabase
	EDB        databases.EmergencyDatabase
	Index      *geo.Index
	instanceID string
}

// New creates a new scheduler instance
func New(udb databases.UserDatabase, edb databases.EmergencyDatabase, index *geo.Index) *Scheduler {
	// Generate a unique instance ID for this pod
	instanceID := os.Getenv("DYNO") // Heroku sets this to "web.1", "web.2", etc.
	if instanceID == "" {
		instanceID = fmt.Sprintf("instance-%d", time.Now().UnixNano())
	}

	return &Scheduler{
		cron:       cron.New(cron.WithLocation(time.UTC)),
		UDB:        udb,
		EDB:        edb,
		Index:      index,
		instanceID: instanceID,
	}
}

// Start begins the scheduler with all registered jobs
func (s *Scheduler) Start() {
	_, err := s.cron.AddFunc("@every 1m", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.RefreshIndex(ctx); err != nil {
			zap.S().Warnw("geo index refresh failed", "instance", s.instanceID, "error", err)
		}
	})
	if err != nil {
		zap.S().Errorw("failed to register index refresh job", "error", err)
	}

	_, err = s.cron.AddFunc("@hourly", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		s.sweepStaleSearches(ctx)
	})
	if err != nil {
		zap.S().Errorw("failed to register stale search sweep", "error", err)
	}

	s.cron.Start()
	zap.S().Infow("scheduler started", "instance", s.instanceID)
}

// Stop halts all scheduled jobs
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// RefreshIndex reloads every responder position from the users
// collection into the in-memory index. Profile edits made directly
// through the external profile service become visible here.
func (s *Scheduler) RefreshIndex(ctx context.Context) error {
	users, err := s.UDB.Find(ctx, bson.M{"user.role": models.RoleResponder})
	if err != nil {
		return err
	}

	indexed := 0
	for _, user := range users {
		d := user.Details
		current := geo.Point{Longitude: d.Location.Longitude(), Latitude: d.Location.Latitude()}
		home := geo.Point{Longitude: d.HomeLocation.Longitude(), Latitude: d.HomeLocation.Latitude()}
		s.Index.Upsert(user.ID, geo.AttrCurrent, current, d.Role, d.Available)
		s.Index.Upsert(user.ID, geo.AttrHome, home, d.Role, d.Available)
		indexed++
	}
	zap.S().Debugw("geo index refreshed", "responders", indexed)
	return nil
}

// sweepStaleSearches logs emergencies stuck in Searching long enough
// that nobody is coming. They are left untouched: closing them is the
// requester's call, not the scheduler's.
func (s *Scheduler) sweepStaleSearches(ctx context.Context) {
	cutoff := primitive.NewDateTimeFromTime(time.Now().Add(-staleSearchAge))
	stale, err := s.EDB.Find(ctx, bson.M{
		"emergency.status":    models.StatusSearching,
		"emergency.createdAt": bson.M{"$lt": cutoff},
	})
	if err != nil {
		zap.S().Warnw("stale search sweep failed", "error", err)
		return
	}
	if len(stale) > 0 {
		zap.S().Warnw("emergencies still searching past cutoff", "count", len(stale), "cutoffAge", staleSearchAge)
	}
}
