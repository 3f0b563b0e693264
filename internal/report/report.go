package report

import (
	"context"
	"errors"
	"time"

	"github.com/cloudidm/onboard/internal/provision"
)

var ErrNotFound = errors.New("status record not found")

// Entry is the last-known provisioning state for a subject, keyed by email.
// The generated password is deliberately not part of it: it is a
// display-once secret and must never reach a store.
type Entry struct {
	Email     string    `bson:"_id" json:"email"`
	Status    string    `bson:"status" json:"status"`
	FirstName string    `bson:"firstName" json:"firstName"`
	LastName  string    `bson:"lastName" json:"lastName"`
	Username  string    `bson:"username" json:"username"`
	Project   string    `bson:"project" json:"project"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// Store keeps one entry per email, overwritten on every transition. It
// satisfies provision.Recorder.
type Store interface {
	Update(ctx context.Context, email string, rec provision.StatusRecord) error
	Get(ctx context.Context, email string) (*Entry, error)
}

// entryFrom strips the snapshot down to what may be persisted.
func entryFrom(email string, rec provision.StatusRecord) Entry {
	return Entry{
		Email:     email,
		Status:    rec.Status,
		FirstName: rec.Subject.FirstName,
		LastName:  rec.Subject.LastName,
		Username:  rec.Subject.Username,
		Project:   rec.Project,
		UpdatedAt: rec.At,
	}
}
