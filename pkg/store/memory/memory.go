package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"mosaic/pkg/store"
)

// Store keeps everything in process memory. Used in tests and when no
// durable backend is configured.
type Store struct {
	mu       sync.Mutex
	contacts map[string]store.Contact // userID + "\x00" + email
	insights []store.Insight
	goals    map[string]store.Goal
	syncs    map[string]time.Time // userID + "\x00" + source
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		contacts: make(map[string]store.Contact),
		goals:    make(map[string]store.Goal),
		syncs:    make(map[string]time.Time),
	}
}

func (s *Store) Close() error { return nil }

func contactKey(userID, email string) string {
	return userID + "\x00" + store.NormalizeEmail(email)
}

func (s *Store) Contact(userID, email string) (store.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	contact, ok := s.contacts[contactKey(userID, email)]
	if !ok {
		return store.Contact{}, store.ErrNotFound
	}
	return cloneContact(contact), nil
}

func (s *Store) PutContact(contact store.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if contact.ID == "" {
		contact.ID = uuid.New().String()
	}
	contact.Email = store.NormalizeEmail(contact.Email)
	if contact.UpdatedAt.IsZero() {
		contact.UpdatedAt = time.Now().UTC()
	}
	s.contacts[contactKey(contact.UserID, contact.Email)] = cloneContact(contact)
	return nil
}

func (s *Store) Contacts(userID string) ([]store.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var contacts []store.Contact
	for _, contact := range s.contacts {
		if contact.UserID == userID {
			contacts = append(contacts, cloneContact(contact))
		}
	}
	sort.Slice(contacts, func(i, j int) bool {
		return contacts[i].LastInteraction.After(contacts[j].LastInteraction)
	})
	return contacts, nil
}

func (s *Store) AddInsight(insight store.Insight) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if insight.ID == "" {
		insight.ID = uuid.New().String()
	}
	if insight.Status == "" {
		insight.Status = store.StatusNew
	}
	if insight.CreatedAt.IsZero() {
		insight.CreatedAt = time.Now().UTC()
	}
	s.insights = append(s.insights, cloneInsight(insight))
	return nil
}

func (s *Store) Insights(userID string, onlyNew bool, limit int) ([]store.Insight, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var insights []store.Insight
	for _, insight := range s.insights {
		if insight.UserID != userID {
			continue
		}
		if onlyNew && insight.Status != store.StatusNew {
			continue
		}
		insights = append(insights, cloneInsight(insight))
	}
	sort.SliceStable(insights, func(i, j int) bool {
		return insights[i].CreatedAt.After(insights[j].CreatedAt)
	})
	if limit > 0 && len(insights) > limit {
		insights = insights[:limit]
	}
	return insights, nil
}

func (s *Store) MarkInsightViewed(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.insights {
		if s.insights[i].ID != id {
			continue
		}
		if s.insights[i].Status == store.StatusNew {
			s.insights[i].Status = store.StatusViewed
			s.insights[i].ViewedAt = time.Now().UTC()
		}
		return nil
	}
	return store.ErrNotFound
}

func (s *Store) AddGoal(goal store.Goal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if goal.ID == "" {
		goal.ID = uuid.New().String()
	}
	if goal.Status == "" {
		goal.Status = store.GoalActive
	}
	if goal.Priority == 0 {
		goal.Priority = store.GoalPriorityDefault
	}
	now := time.Now().UTC()
	if goal.CreatedAt.IsZero() {
		goal.CreatedAt = now
	}
	if goal.UpdatedAt.IsZero() {
		goal.UpdatedAt = now
	}
	s.goals[goal.ID] = cloneGoal(goal)
	return nil
}

func (s *Store) Goal(id string) (store.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	goal, ok := s.goals[id]
	if !ok {
		return store.Goal{}, store.ErrNotFound
	}
	return cloneGoal(goal), nil
}

func (s *Store) Goals(userID, status string) ([]store.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var goals []store.Goal
	for _, goal := range s.goals {
		if goal.UserID != userID {
			continue
		}
		if status != "" && goal.Status != status {
			continue
		}
		goals = append(goals, cloneGoal(goal))
	}
	// Highest priority first, oldest first within a priority.
	sort.Slice(goals, func(i, j int) bool {
		if goals[i].Priority != goals[j].Priority {
			return goals[i].Priority > goals[j].Priority
		}
		return goals[i].CreatedAt.Before(goals[j].CreatedAt)
	})
	return goals, nil
}

func (s *Store) UpdateGoal(goal store.Goal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.goals[goal.ID]
	if !ok {
		return store.ErrNotFound
	}
	goal.CreatedAt = existing.CreatedAt
	goal.UpdatedAt = time.Now().UTC()
	s.goals[goal.ID] = cloneGoal(goal)
	return nil
}

func syncKey(userID, source string) string {
	return userID + "\x00" + source
}

func (s *Store) LastSync(userID, source string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	at, ok := s.syncs[syncKey(userID, source)]
	return at, ok, nil
}

func (s *Store) SetLastSync(userID, source string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.syncs[syncKey(userID, source)] = at
	return nil
}

func cloneContact(contact store.Contact) store.Contact {
	clone := contact
	clone.InteractionHistory = append([]store.Interaction(nil), contact.InteractionHistory...)
	return clone
}

func cloneGoal(goal store.Goal) store.Goal {
	clone := goal
	clone.Milestones = append([]string(nil), goal.Milestones...)
	return clone
}

func cloneInsight(insight store.Insight) store.Insight {
	clone := insight
	if insight.Metadata != nil {
		clone.Metadata = make(map[string]string, len(insight.Metadata))
		for key, value := range insight.Metadata {
			clone.Metadata[key] = value
		}
	}
	return clone
}
