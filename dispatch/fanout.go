package dispatch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/mitrahelp/mitrahelp-api/databases"
	"github.com/mitrahelp/mitrahelp-api/models"
	"github.com/mitrahelp/mitrahelp-api/realtime"
	templates "github.com/mitrahelp/mitrahelp-api/templates/html"
)

// EmailSender delivers one rendered message to one address. Senders are
// expected to honor context cancellation; the fanout additionally fences
// every send so a sender that ignores it still cannot stall the window.
type EmailSender interface {
	Send(ctx context.Context, toName, toEmail, subject, plainText, htmlContent string) error
}

// Delivery outcome per channel of a single candidate.
const (
	OutcomeDelivered = "delivered"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

// Outcome is the per-candidate result of one fanout. It is logged by the
// coordinator and never influences request creation.
type Outcome struct {
	ResponderID string `json:"responderId"`
	Email       string `json:"email,omitempty"`
	EmailStatus string `json:"emailStatus"`
	Error       string `json:"error,omitempty"`
}

// Fanout notifies every candidate independently: a fire-and-forget
// realtime event to the candidate's private channel plus an email when a
// usable address exists. One failing recipient never blocks the others.
type Fanout struct {
	Users     databases.UserDatabase
	Publisher realtime.Publisher
	Email     EmailSender

	// Timeout bounds the whole fanout window. Zero means 30s.
	Timeout time.Duration
}

func (f *Fanout) timeout() time.Duration {
	if f.Timeout > 0 {
		return f.Timeout
	}
	return 30 * time.Second
}

func usableAddress(email string) bool {
	return strings.Contains(email, "@")
}

// sendFenced runs one email send against the fanout deadline. The send
// itself gets the context, and the select guarantees a return by the
// deadline even when the sender ignores cancellation; the straggling
// goroutine finishes on its own and its result is dropped.
func (f *Fanout) sendFenced(ctx context.Context, toName, toEmail, subject, plain, html string) error {
	done := make(chan error, 1)
	go func() {
		done <- f.Email.Send(ctx, toName, toEmail, subject, plain, html)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("delivery window exceeded: %v", ctx.Err())
	}
}

// Notify fans the new-emergency notification out to all candidates and
// returns the per-candidate outcome report.
func (f *Fanout) Notify(ctx context.Context, em *models.Emergency, candidates []models.NotifiedResponder) []Outcome {
	if len(candidates) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeout())
	defer cancel()

	profiles := f.loadProfiles(ctx, candidates)

	results := make(chan Outcome, len(candidates))
	var wg sync.WaitGroup
	for _, cand := range candidates {
		wg.Add(1)
		go func(cand models.NotifiedResponder) {
			defer wg.Done()
			results <- f.notifyOne(ctx, em, cand, profiles[cand.ID])
		}(cand)
	}
	wg.Wait()
	close(results)

	outcomes := make([]Outcome, 0, len(candidates))
	delivered := 0
	for o := range results {
		if o.EmailStatus == OutcomeDelivered {
			delivered++
		}
		outcomes = append(outcomes, o)
	}
	zap.S().Infow("candidate fanout finished",
		"emergencyID", em.ID,
		"candidates", len(candidates),
		"emailsDelivered", delivered,
	)
	return outcomes
}

func (f *Fanout) notifyOne(ctx context.Context, em *models.Emergency, cand models.NotifiedResponder, profile *models.User) Outcome {
	out := Outcome{ResponderID: cand.ID}

	if f.Publisher != nil {
		f.Publisher.Publish(cand.ID, realtime.EventNewEmergency, map[string]interface{}{
			"emergencyId": em.ID,
			"type":        em.Details.Type,
			"location":    em.Details.Location,
			"requester":   em.Details.RequesterName,
			"matchedBy":   cand.MatchedBy,
		})
	}

	if profile == nil || !usableAddress(profile.Details.Email) {
		out.EmailStatus = OutcomeSkipped
		return out
	}
	out.Email = profile.Details.Email

	name := profile.Details.Name
	if name == "" {
		name = "Responder"
	}
	subject, plain, html := templates.RenderEmergencyNotification(templates.EmergencyEmailData{
		ResponderName: name,
		RequesterName: em.Details.RequesterName,
		EmergencyType: string(em.Details.Type),
		Description:   em.Details.Description,
		Address:       em.Details.Location.Address,
		Latitude:      em.Details.Location.Latitude(),
		Longitude:     em.Details.Location.Longitude(),
	})
	if err := f.sendFenced(ctx, name, profile.Details.Email, subject, plain, html); err != nil {
		out.EmailStatus = OutcomeFailed
		out.Error = err.Error()
		zap.S().Warnw("candidate email failed", "emergencyID", em.ID, "responderID", cand.ID, "error", err)
		return out
	}
	out.EmailStatus = OutcomeDelivered
	return out
}

// NotifyContacts alerts the requester's pre-registered emergency
// contacts. Issued asynchronously by the coordinator; its outcome is only
// logged.
func (f *Fanout) NotifyContacts(ctx context.Context, em *models.Emergency) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout())
	defer cancel()

	requester, err := f.loadUser(ctx, em.Details.RequesterID)
	if err != nil {
		zap.S().Warnw("cannot load requester for contact alerts", "emergencyID", em.ID, "error", err)
		return
	}
	contacts := requester.Details.EmergencyContacts
	if len(contacts) == 0 {
		return
	}

	subject, plain, html := templates.RenderContactAlert(templates.ContactAlertData{
		UserName:      requester.Details.Name,
		EmergencyType: string(em.Details.Type),
		Description:   em.Details.Description,
		Address:       em.Details.Location.Address,
		MapLink: fmt.Sprintf("https://www.google.com/maps?q=%v,%v",
			em.Details.Location.Latitude(), em.Details.Location.Longitude()),
	})

	var wg sync.WaitGroup
	sent := 0
	var mu sync.Mutex
	for _, contact := range contacts {
		if !usableAddress(contact.Email) {
			continue
		}
		wg.Add(1)
		go func(contact models.EmergencyContact) {
			defer wg.Done()
			if err := f.sendFenced(ctx, contact.Name, contact.Email, subject, plain, html); err != nil {
				zap.S().Warnw("contact alert failed", "emergencyID", em.ID, "contact", contact.Email, "error", err)
				return
			}
			mu.Lock()
			sent++
			mu.Unlock()
		}(contact)
	}
	wg.Wait()
	zap.S().Infow("contact alerts finished", "emergencyID", em.ID, "contacts", len(contacts), "sent", sent)
}

func (f *Fanout) loadProfiles(ctx context.Context, candidates []models.NotifiedResponder) map[string]*models.User {
	profiles := make(map[string]*models.User, len(candidates))
	if f.Users == nil {
		return profiles
	}
	oids := make([]primitive.ObjectID, 0, len(candidates))
	for _, cand := range candidates {
		if oid, err := primitive.ObjectIDFromHex(cand.ID); err == nil {
			oids = append(oids, oid)
		}
	}
	users, err := f.Users.Find(ctx, bson.M{"_id": bson.M{"$in": oids}})
	if err != nil {
		zap.S().Warnw("cannot load candidate profiles, realtime-only fanout", "error", err)
		return profiles
	}
	for i := range users {
		profiles[users[i].ID] = &users[i]
	}
	return profiles
}

func (f *Fanout) loadUser(ctx context.Context, id string) (*models.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, err
	}
	return f.Users.FindOne(ctx, bson.M{"_id": oid})
}
