package dispatch_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/mitrahelp/mitrahelp-api/dispatch"
	"github.com/mitrahelp/mitrahelp-api/models"
	"github.com/mitrahelp/mitrahelp-api/realtime"
)

func testEmergency(requesterID string) *models.Emergency {
	return &models.Emergency{
		ID: primitive.NewObjectID().Hex(),
		Details: models.EmergencyDetails{
			RequesterID:   requesterID,
			RequesterName: "Adi",
			Type:          models.EmergencyTypeAccident,
			Description:   "motorbike crash",
			Location:      models.NewLocation(106.8456, -6.2088, "Jl. Sudirman 1"),
			Status:        models.StatusSearching,
		},
	}
}

func candidateFor(u models.User) models.NotifiedResponder {
	return models.NotifiedResponder{ID: u.ID, MatchedBy: models.MatchedByCurrent}
}

func responderUser(name, email string) models.User {
	return models.User{
		ID: primitive.NewObjectID().Hex(),
		Details: models.UserDetails{
			Name:      name,
			Email:     email,
			Role:      models.RoleResponder,
			Available: true,
		},
	}
}

func TestFanoutNotifyAllCandidates(t *testing.T) {
	withEmail := responderUser("Budi", "budi@example.com")
	noEmail := responderUser("Citra", "")

	pub := &recordingPublisher{}
	email := &fakeEmailSender{}
	f := &dispatch.Fanout{
		Users:     &memoryUserDB{users: []models.User{withEmail, noEmail}},
		Publisher: pub,
		Email:     email,
	}

	em := testEmergency(primitive.NewObjectID().Hex())
	outcomes := f.Notify(context.Background(), em, []models.NotifiedResponder{
		candidateFor(withEmail), candidateFor(noEmail),
	})

	assert.Len(t, outcomes, 2)
	byID := map[string]dispatch.Outcome{}
	for _, o := range outcomes {
		byID[o.ResponderID] = o
	}
	assert.Equal(t, dispatch.OutcomeDelivered, byID[withEmail.ID].EmailStatus)
	assert.Equal(t, dispatch.OutcomeSkipped, byID[noEmail.ID].EmailStatus)

	// every candidate gets the realtime event regardless of email
	events := pub.byEvent(realtime.EventNewEmergency)
	rooms := []string{}
	for _, e := range events {
		rooms = append(rooms, e.Room)
	}
	assert.ElementsMatch(t, []string{withEmail.ID, noEmail.ID}, rooms)
}

func TestFanoutOneFailureDoesNotBlockOthers(t *testing.T) {
	ok := responderUser("Budi", "budi@example.com")
	broken := responderUser("Dewa", "dewa@example.com")

	pub := &recordingPublisher{}
	email := &fakeEmailSender{failFor: map[string]error{
		"dewa@example.com": errors.New("smtp 550"),
	}}
	f := &dispatch.Fanout{
		Users:     &memoryUserDB{users: []models.User{ok, broken}},
		Publisher: pub,
		Email:     email,
	}

	em := testEmergency(primitive.NewObjectID().Hex())
	outcomes := f.Notify(context.Background(), em, []models.NotifiedResponder{
		candidateFor(ok), candidateFor(broken),
	})

	byID := map[string]dispatch.Outcome{}
	for _, o := range outcomes {
		byID[o.ResponderID] = o
	}
	assert.Equal(t, dispatch.OutcomeDelivered, byID[ok.ID].EmailStatus)
	assert.Equal(t, dispatch.OutcomeFailed, byID[broken.ID].EmailStatus)
	assert.Contains(t, byID[broken.ID].Error, "smtp 550")

	// both still got the realtime event
	assert.Len(t, pub.byEvent(realtime.EventNewEmergency), 2)
}

// stuckEmailSender never returns on its own; only the fanout deadline
// can unblock a send against it.
type stuckEmailSender struct {
	release chan struct{}
}

func (s *stuckEmailSender) Send(_ context.Context, _, _, _, _, _ string) error {
	<-s.release
	return nil
}

func TestFanoutHungSenderIsBoundedByTimeout(t *testing.T) {
	responder := responderUser("Budi", "budi@example.com")
	email := &stuckEmailSender{release: make(chan struct{})}
	defer close(email.release)

	f := &dispatch.Fanout{
		Users:     &memoryUserDB{users: []models.User{responder}},
		Publisher: &recordingPublisher{},
		Email:     email,
		Timeout:   100 * time.Millisecond,
	}

	em := testEmergency(primitive.NewObjectID().Hex())
	start := time.Now()
	outcomes := f.Notify(context.Background(), em, []models.NotifiedResponder{candidateFor(responder)})
	elapsed := time.Since(start)

	assert.Less(t, elapsed, 2*time.Second)
	if assert.Len(t, outcomes, 1) {
		assert.Equal(t, dispatch.OutcomeFailed, outcomes[0].EmailStatus)
		assert.Contains(t, outcomes[0].Error, "delivery window exceeded")
	}
}

func TestFanoutNoCandidates(t *testing.T) {
	f := &dispatch.Fanout{Publisher: &recordingPublisher{}, Email: &fakeEmailSender{}}
	assert.Nil(t, f.Notify(context.Background(), testEmergency("requester-1"), nil))
}

func TestNotifyContacts(t *testing.T) {
	requester := models.User{
		ID: primitive.NewObjectID().Hex(),
		Details: models.UserDetails{
			Name: "Adi",
			Role: models.RoleRequester,
			EmergencyContacts: []models.EmergencyContact{
				{Name: "Ibu", Email: "ibu@example.com"},
				{Name: "No Email", Email: ""},
				{Name: "Kakak", Email: "kakak@example.com"},
			},
		},
	}

	email := &fakeEmailSender{}
	f := &dispatch.Fanout{
		Users: &memoryUserDB{users: []models.User{requester}},
		Email: email,
	}

	em := testEmergency(requester.ID)
	f.NotifyContacts(context.Background(), em)

	assert.ElementsMatch(t, []string{"ibu@example.com", "kakak@example.com"}, email.sent)
}

func TestNotifyContactsUnknownRequester(t *testing.T) {
	email := &fakeEmailSender{}
	f := &dispatch.Fanout{
		Users: &memoryUserDB{},
		Email: email,
	}

	// must not panic or send anything
	f.NotifyContacts(context.Background(), testEmergency(primitive.NewObjectID().Hex()))
	assert.Empty(t, email.sent)
}
