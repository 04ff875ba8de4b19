package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"mosaic/pkg/store"
)

// Schema is the SQL schema for the mosaic database.
const Schema = `
CREATE TABLE IF NOT EXISTS contacts (
    id                   TEXT PRIMARY KEY,
    user_id              TEXT NOT NULL,
    email                TEXT NOT NULL,
    name                 TEXT DEFAULT '',
    history              TEXT NOT NULL DEFAULT '[]',
    interaction_count    INTEGER NOT NULL DEFAULT 0,
    pending_replies      INTEGER NOT NULL DEFAULT 0,
    relationship_summary TEXT DEFAULT '',
    last_interaction     TEXT NOT NULL DEFAULT '',
    updated_at           TEXT NOT NULL DEFAULT '',
    UNIQUE(user_id, email)
);

CREATE TABLE IF NOT EXISTS insights (
    id         TEXT PRIMARY KEY,
    user_id    TEXT NOT NULL,
    kind       TEXT NOT NULL,
    title      TEXT NOT NULL,
    content    TEXT NOT NULL,
    priority   TEXT DEFAULT '',
    status     TEXT NOT NULL DEFAULT 'new'
               CHECK(status IN ('new', 'viewed')),
    metadata   TEXT NOT NULL DEFAULT '{}',
    created_at TEXT NOT NULL DEFAULT '',
    viewed_at  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS goals (
    id          TEXT PRIMARY KEY,
    user_id     TEXT NOT NULL,
    title       TEXT NOT NULL,
    description TEXT DEFAULT '',
    horizon     TEXT NOT NULL
                CHECK(horizon IN ('short_term', 'medium_term', 'long_term')),
    status      TEXT NOT NULL DEFAULT 'active'
                CHECK(status IN ('active', 'completed', 'paused', 'archived')),
    priority    INTEGER NOT NULL DEFAULT 3
                CHECK(priority BETWEEN 1 AND 5),
    progress    INTEGER NOT NULL DEFAULT 0
                CHECK(progress BETWEEN 0 AND 100),
    target_date TEXT NOT NULL DEFAULT '',
    milestones  TEXT NOT NULL DEFAULT '[]',
    notes       TEXT DEFAULT '',
    created_at  TEXT NOT NULL DEFAULT '',
    updated_at  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS sync_state (
    user_id   TEXT NOT NULL,
    source    TEXT NOT NULL,
    last_sync TEXT NOT NULL,
    PRIMARY KEY(user_id, source)
);

CREATE INDEX IF NOT EXISTS idx_contacts_user ON contacts(user_id);
CREATE INDEX IF NOT EXISTS idx_insights_user_status ON insights(user_id, status);
CREATE INDEX IF NOT EXISTS idx_goals_user_status ON goals(user_id, status);
`

// Store persists mosaic state in a single SQLite file.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open opens (or creates) the database at path and runs migrations.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate db: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Contact(userID, email string) (store.Contact, error) {
	row := s.db.QueryRow(
		`SELECT id, user_id, email, name, history, interaction_count, pending_replies, relationship_summary, last_interaction, updated_at
		   FROM contacts WHERE user_id = ? AND email = ?`,
		userID, store.NormalizeEmail(email),
	)
	return scanContact(row)
}

func (s *Store) PutContact(contact store.Contact) error {
	if contact.ID == "" {
		contact.ID = uuid.New().String()
	}
	contact.Email = store.NormalizeEmail(contact.Email)
	if contact.UpdatedAt.IsZero() {
		contact.UpdatedAt = time.Now().UTC()
	}

	history, err := json.Marshal(contact.InteractionHistory)
	if err != nil {
		return fmt.Errorf("encode interaction history: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO contacts (id, user_id, email, name, history, interaction_count, pending_replies, relationship_summary, last_interaction, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, email) DO UPDATE SET
		     name = excluded.name,
		     history = excluded.history,
		     interaction_count = excluded.interaction_count,
		     pending_replies = excluded.pending_replies,
		     relationship_summary = excluded.relationship_summary,
		     last_interaction = excluded.last_interaction,
		     updated_at = excluded.updated_at`,
		contact.ID, contact.UserID, contact.Email, contact.Name,
		string(history), contact.InteractionCount, contact.PendingReplies,
		contact.RelationshipSummary,
		formatTime(contact.LastInteraction), formatTime(contact.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert contact %q: %w", contact.Email, err)
	}
	return nil
}

func (s *Store) Contacts(userID string) ([]store.Contact, error) {
	rows, err := s.db.Query(
		`SELECT id, user_id, email, name, history, interaction_count, pending_replies, relationship_summary, last_interaction, updated_at
		   FROM contacts WHERE user_id = ? ORDER BY last_interaction DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	var contacts []store.Contact
	for rows.Next() {
		contact, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, contact)
	}
	return contacts, rows.Err()
}

func (s *Store) AddInsight(insight store.Insight) error {
	if insight.ID == "" {
		insight.ID = uuid.New().String()
	}
	if insight.Status == "" {
		insight.Status = store.StatusNew
	}
	if insight.CreatedAt.IsZero() {
		insight.CreatedAt = time.Now().UTC()
	}

	metadata, err := json.Marshal(metadataOrEmpty(insight.Metadata))
	if err != nil {
		return fmt.Errorf("encode insight metadata: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO insights (id, user_id, kind, title, content, priority, status, metadata, created_at, viewed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		insight.ID, insight.UserID, insight.Kind, insight.Title, insight.Content,
		insight.Priority, insight.Status, string(metadata),
		formatTime(insight.CreatedAt), formatTime(insight.ViewedAt),
	)
	if err != nil {
		return fmt.Errorf("insert insight: %w", err)
	}
	return nil
}

func (s *Store) Insights(userID string, onlyNew bool, limit int) ([]store.Insight, error) {
	query := `SELECT id, user_id, kind, title, content, priority, status, metadata, created_at, viewed_at
	            FROM insights WHERE user_id = ?`
	args := []any{userID}
	if onlyNew {
		query += ` AND status = ?`
		args = append(args, store.StatusNew)
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list insights: %w", err)
	}
	defer rows.Close()

	var insights []store.Insight
	for rows.Next() {
		var (
			insight   store.Insight
			metadata  string
			createdAt string
			viewedAt  string
		)
		if err := rows.Scan(&insight.ID, &insight.UserID, &insight.Kind, &insight.Title,
			&insight.Content, &insight.Priority, &insight.Status, &metadata, &createdAt, &viewedAt); err != nil {
			return nil, fmt.Errorf("scan insight: %w", err)
		}
		if metadata != "" && metadata != "{}" {
			if err := json.Unmarshal([]byte(metadata), &insight.Metadata); err != nil {
				return nil, fmt.Errorf("decode insight metadata: %w", err)
			}
		}
		insight.CreatedAt = parseTime(createdAt)
		insight.ViewedAt = parseTime(viewedAt)
		insights = append(insights, insight)
	}
	return insights, rows.Err()
}

// MarkInsightViewed transitions an insight from new to viewed and
// records when. Marking an already-viewed insight is a no-op; the
// status and timestamp never move back.
func (s *Store) MarkInsightViewed(id string) error {
	result, err := s.db.Exec(
		`UPDATE insights SET status = ?, viewed_at = ? WHERE id = ? AND status = ?`,
		store.StatusViewed, formatTime(time.Now().UTC()), id, store.StatusNew,
	)
	if err != nil {
		return fmt.Errorf("mark insight viewed: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark insight viewed: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var exists int
	err = s.db.QueryRow(`SELECT 1 FROM insights WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func (s *Store) AddGoal(goal store.Goal) error {
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

	milestones, err := json.Marshal(milestonesOrEmpty(goal.Milestones))
	if err != nil {
		return fmt.Errorf("encode milestones: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO goals (id, user_id, title, description, horizon, status, priority, progress, target_date, milestones, notes, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		goal.ID, goal.UserID, goal.Title, goal.Description, goal.Horizon,
		goal.Status, goal.Priority, goal.Progress, formatTime(goal.TargetDate),
		string(milestones), goal.Notes,
		formatTime(goal.CreatedAt), formatTime(goal.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert goal: %w", err)
	}
	return nil
}

func (s *Store) Goal(id string) (store.Goal, error) {
	row := s.db.QueryRow(
		`SELECT id, user_id, title, description, horizon, status, priority, progress, target_date, milestones, notes, created_at, updated_at
		   FROM goals WHERE id = ?`, id,
	)
	return scanGoal(row)
}

// Goals lists highest-priority goals first, oldest first within a
// priority.
func (s *Store) Goals(userID, status string) ([]store.Goal, error) {
	query := `SELECT id, user_id, title, description, horizon, status, priority, progress, target_date, milestones, notes, created_at, updated_at
	            FROM goals WHERE user_id = ?`
	args := []any{userID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY priority DESC, created_at`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	defer rows.Close()

	var goals []store.Goal
	for rows.Next() {
		goal, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		goals = append(goals, goal)
	}
	return goals, rows.Err()
}

func (s *Store) UpdateGoal(goal store.Goal) error {
	goal.UpdatedAt = time.Now().UTC()

	milestones, err := json.Marshal(milestonesOrEmpty(goal.Milestones))
	if err != nil {
		return fmt.Errorf("encode milestones: %w", err)
	}

	result, err := s.db.Exec(
		`UPDATE goals SET title = ?, description = ?, horizon = ?, status = ?, priority = ?, progress = ?, target_date = ?, milestones = ?, notes = ?, updated_at = ?
		  WHERE id = ?`,
		goal.Title, goal.Description, goal.Horizon, goal.Status,
		goal.Priority, goal.Progress, formatTime(goal.TargetDate),
		string(milestones), goal.Notes,
		formatTime(goal.UpdatedAt), goal.ID,
	)
	if err != nil {
		return fmt.Errorf("update goal: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update goal: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) LastSync(userID, source string) (time.Time, bool, error) {
	var raw string
	err := s.db.QueryRow(
		`SELECT last_sync FROM sync_state WHERE user_id = ? AND source = ?`,
		userID, source,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read sync state: %w", err)
	}
	return parseTime(raw), true, nil
}

func (s *Store) SetLastSync(userID, source string, at time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO sync_state (user_id, source, last_sync) VALUES (?, ?, ?)
		 ON CONFLICT(user_id, source) DO UPDATE SET last_sync = excluded.last_sync`,
		userID, source, formatTime(at),
	)
	if err != nil {
		return fmt.Errorf("write sync state: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContact(row rowScanner) (store.Contact, error) {
	var (
		contact         store.Contact
		history         string
		lastInteraction string
		updatedAt       string
	)
	err := row.Scan(&contact.ID, &contact.UserID, &contact.Email, &contact.Name,
		&history, &contact.InteractionCount, &contact.PendingReplies,
		&contact.RelationshipSummary, &lastInteraction, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Contact{}, store.ErrNotFound
	}
	if err != nil {
		return store.Contact{}, fmt.Errorf("scan contact: %w", err)
	}

	if history != "" && history != "[]" {
		if err := json.Unmarshal([]byte(history), &contact.InteractionHistory); err != nil {
			return store.Contact{}, fmt.Errorf("decode interaction history: %w", err)
		}
	}
	contact.LastInteraction = parseTime(lastInteraction)
	contact.UpdatedAt = parseTime(updatedAt)
	return contact, nil
}

func scanGoal(row rowScanner) (store.Goal, error) {
	var (
		goal       store.Goal
		targetDate string
		milestones string
		createdAt  string
		updatedAt  string
	)
	err := row.Scan(&goal.ID, &goal.UserID, &goal.Title, &goal.Description,
		&goal.Horizon, &goal.Status, &goal.Priority, &goal.Progress,
		&targetDate, &milestones, &goal.Notes, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Goal{}, store.ErrNotFound
	}
	if err != nil {
		return store.Goal{}, fmt.Errorf("scan goal: %w", err)
	}

	if milestones != "" && milestones != "[]" {
		if err := json.Unmarshal([]byte(milestones), &goal.Milestones); err != nil {
			return store.Goal{}, fmt.Errorf("decode milestones: %w", err)
		}
	}
	goal.TargetDate = parseTime(targetDate)
	goal.CreatedAt = parseTime(createdAt)
	goal.UpdatedAt = parseTime(updatedAt)
	return goal, nil
}

func metadataOrEmpty(metadata map[string]string) map[string]string {
	if metadata == nil {
		return map[string]string{}
	}
	return metadata
}

func milestonesOrEmpty(milestones []string) []string {
	if milestones == nil {
		return []string{}
	}
	return milestones
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	parsed, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return parsed.UTC()
}
