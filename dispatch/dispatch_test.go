package dispatch_test

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mitrahelp/mitrahelp-api/databases"
	"github.com/mitrahelp/mitrahelp-api/geo"
	"github.com/mitrahelp/mitrahelp-api/models"
)

// memoryEmergencyDB is a stateful in-memory stand-in for the emergencies
// collection. Conditional updates take the same status-keyed filter the
// real store does, so accept races behave exactly as against Mongo.
type memoryEmergencyDB struct {
	mu   sync.Mutex
	docs map[string]*models.Emergency
}

func newMemoryEmergencyDB() *memoryEmergencyDB {
	return &memoryEmergencyDB{docs: make(map[string]*models.Emergency)}
}

func (m *memoryEmergencyDB) seed(details models.EmergencyDetails) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := primitive.NewObjectID().Hex()
	m.docs[id] = &models.Emergency{ID: id, Details: details}
	return id
}

func copyEmergency(em *models.Emergency) *models.Emergency {
	out := *em
	out.Details.Tracking.CurrentPositions = make(map[string]models.Position, len(em.Details.Tracking.CurrentPositions))
	for k, v := range em.Details.Tracking.CurrentPositions {
		out.Details.Tracking.CurrentPositions[k] = v
	}
	out.Details.Tracking.StatusHistory = append([]models.StatusEntry(nil), em.Details.Tracking.StatusHistory...)
	out.Details.NotifiedResponders = append([]models.NotifiedResponder(nil), em.Details.NotifiedResponders...)
	return &out
}

func filterID(filter interface{}) (string, bool) {
	f, ok := filter.(bson.M)
	if !ok {
		return "", false
	}
	oid, ok := f["_id"].(primitive.ObjectID)
	if !ok {
		return "", false
	}
	return oid.Hex(), true
}

func (m *memoryEmergencyDB) matchLocked(filter interface{}) *models.Emergency {
	id, ok := filterID(filter)
	if !ok {
		return nil
	}
	em, ok := m.docs[id]
	if !ok {
		return nil
	}
	if want, ok := filter.(bson.M)["emergency.status"]; ok {
		if status, ok := want.(models.EmergencyStatus); !ok || em.Details.Status != status {
			return nil
		}
	}
	if cond, ok := filter.(bson.M)["emergency.requesterID"].(bson.M); ok {
		if excluded, ok := cond["$ne"].(string); ok && em.Details.RequesterID == excluded {
			return nil
		}
	}
	return em
}

func (m *memoryEmergencyDB) applyLocked(em *models.Emergency, update interface{}) {
	u, ok := update.(bson.M)
	if !ok {
		return
	}
	if set, ok := u["$set"].(bson.M); ok {
		for key, val := range set {
			switch {
			case key == "emergency.status":
				em.Details.Status = val.(models.EmergencyStatus)
			case key == "emergency.assignedResponder":
				em.Details.AssignedResponder = val.(string)
			case key == "emergency.updatedAt":
				em.Details.UpdatedAt = val.(primitive.DateTime)
			case key == "emergency.notifiedResponders":
				em.Details.NotifiedResponders = val.([]models.NotifiedResponder)
			case key == "emergency.tracking.estimatedArrival":
				eta := val.(time.Time)
				em.Details.Tracking.EstimatedArrival = &eta
			case strings.HasPrefix(key, "emergency.tracking.currentPositions."):
				if em.Details.Tracking.CurrentPositions == nil {
					em.Details.Tracking.CurrentPositions = map[string]models.Position{}
				}
				responderID := strings.TrimPrefix(key, "emergency.tracking.currentPositions.")
				em.Details.Tracking.CurrentPositions[responderID] = val.(models.Position)
			}
		}
	}
	if push, ok := u["$push"].(bson.M); ok {
		if entry, ok := push["emergency.tracking.statusHistory"].(models.StatusEntry); ok {
			em.Details.Tracking.StatusHistory = append(em.Details.Tracking.StatusHistory, entry)
		}
	}
}

func (m *memoryEmergencyDB) FindOne(_ context.Context, filter interface{}, _ ...*options.FindOneOptions) (*models.Emergency, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	em := m.matchLocked(filter)
	if em == nil {
		return nil, mongo.ErrNoDocuments
	}
	return copyEmergency(em), nil
}

func (m *memoryEmergencyDB) Find(_ context.Context, filter interface{}, _ ...*options.FindOptions) ([]models.Emergency, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Emergency
	want, filtered := filter.(bson.M)["emergency.status"]
	for _, em := range m.docs {
		if filtered {
			if status, ok := want.(models.EmergencyStatus); !ok || em.Details.Status != status {
				continue
			}
		}
		out = append(out, *copyEmergency(em))
	}
	return out, nil
}

type fakeInsertResult struct{ id primitive.ObjectID }

func (r fakeInsertResult) Decode() interface{} { return r.id }

func (m *memoryEmergencyDB) InsertOne(_ context.Context, document interface{}, _ ...*options.InsertOneOptions) (databases.InsertOneResultHelper, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc := document.(bson.M)
	oid := doc["_id"].(primitive.ObjectID)
	details := doc["emergency"].(models.EmergencyDetails)
	m.docs[oid.Hex()] = &models.Emergency{ID: oid.Hex(), Details: details}
	return fakeInsertResult{id: oid}, nil
}

func (m *memoryEmergencyDB) UpdateOne(_ context.Context, filter interface{}, update interface{}, _ ...*options.UpdateOptions) (*models.Emergency, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	em := m.matchLocked(filter)
	if em == nil {
		return nil, mongo.ErrNoDocuments
	}
	m.applyLocked(em, update)
	return copyEmergency(em), nil
}

func (m *memoryEmergencyDB) UpdateOneConditional(_ context.Context, filter interface{}, update interface{}) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	em := m.matchLocked(filter)
	if em == nil {
		return false, nil
	}
	m.applyLocked(em, update)
	return true, nil
}

var _ databases.EmergencyDatabase = (*memoryEmergencyDB)(nil)

// memoryUserDB serves user profiles from a fixed slice.
type memoryUserDB struct {
	users []models.User
}

func (m *memoryUserDB) FindOne(_ context.Context, filter interface{}, _ ...*options.FindOneOptions) (*models.User, error) {
	id, ok := filterID(filter)
	if !ok {
		return nil, mongo.ErrNoDocuments
	}
	for i := range m.users {
		if m.users[i].ID == id {
			u := m.users[i]
			return &u, nil
		}
	}
	return nil, mongo.ErrNoDocuments
}

func (m *memoryUserDB) Find(_ context.Context, filter interface{}, _ ...*options.FindOptions) ([]models.User, error) {
	return append([]models.User(nil), m.users...), nil
}

func (m *memoryUserDB) UpdateOne(_ context.Context, filter interface{}, _ interface{}, _ ...*options.UpdateOptions) (*models.User, error) {
	return m.FindOne(nil, filter)
}

var _ databases.UserDatabase = (*memoryUserDB)(nil)

// fakeLocator returns canned ids per attribute, applying the filter
// against stored entries like the real index would.
type fakeLocator struct {
	byAttr map[geo.Attribute][]geo.Entry
}

func (f *fakeLocator) Query(_ geo.Point, _ float64, attr geo.Attribute, filter geo.Filter) []string {
	var ids []string
	for _, e := range f.byAttr[attr] {
		if filter != nil && !filter(e) {
			continue
		}
		ids = append(ids, e.ID)
	}
	return ids
}

func responderEntries(ids ...string) []geo.Entry {
	out := make([]geo.Entry, 0, len(ids))
	for _, id := range ids {
		out = append(out, geo.Entry{ID: id, Role: models.RoleResponder, Available: true})
	}
	return out
}

// recordingPublisher captures published events per room.
type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

type publishedEvent struct {
	Room  string
	Event string
	Data  interface{}
}

func (p *recordingPublisher) Publish(room, event string, payload interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{Room: room, Event: event, Data: payload})
}

func (p *recordingPublisher) byEvent(event string) []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []publishedEvent
	for _, e := range p.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

// fakeEmailSender records sends and fails addresses on demand.
type fakeEmailSender struct {
	mu      sync.Mutex
	sent    []string
	failFor map[string]error
}

func (f *fakeEmailSender) Send(_ context.Context, _, toEmail, _, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failFor[toEmail]; ok {
		return err
	}
	f.sent = append(f.sent, toEmail)
	return nil
}
