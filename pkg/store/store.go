package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup matches no record.
var ErrNotFound = errors.New("record not found")

// Store is the durable state shared by the agents: the contact graph,
// synthesized insights, user goals and per-source sync watermarks.
type Store interface {
	Contact(userID, email string) (Contact, error)
	PutContact(contact Contact) error
	Contacts(userID string) ([]Contact, error)

	AddInsight(insight Insight) error
	Insights(userID string, onlyNew bool, limit int) ([]Insight, error)
	MarkInsightViewed(id string) error

	AddGoal(goal Goal) error
	Goal(id string) (Goal, error)
	Goals(userID, status string) ([]Goal, error)
	UpdateGoal(goal Goal) error

	LastSync(userID, source string) (time.Time, bool, error)
	SetLastSync(userID, source string, at time.Time) error

	Close() error
}
