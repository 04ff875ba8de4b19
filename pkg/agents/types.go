package agents

// Entities are the people, companies and projects mentioned in a
// record.
type Entities struct {
	People    []string `json:"people"`
	Companies []string `json:"companies"`
	Projects  []string `json:"projects"`
}

// Commitments are the obligations a record creates.
type Commitments struct {
	TasksForMe     []string `json:"tasks_for_me"`
	TasksForOthers []string `json:"tasks_for_others"`
	Deadlines      []string `json:"deadlines"`
}

// Record is one mailbox item enriched with extracted structure. Every
// gathered item yields exactly one Record; extraction failures produce
// a degraded Record with ProcessingError set rather than dropping the
// item.
type Record struct {
	ID              string      `json:"id"`
	Subject         string      `json:"subject"`
	Sender          string      `json:"sender"`
	Date            string      `json:"date"`
	Summary         string      `json:"summary"`
	Intent          string      `json:"intent"`
	Entities        Entities    `json:"entities"`
	Commitments     Commitments `json:"commitments"`
	Sentiment       string      `json:"sentiment"`
	ReplyNeeded     bool        `json:"is_reply_needed"`
	UrgencyScore    int         `json:"urgency_score"`
	ProcessingError string      `json:"processing_error,omitempty"`
}

// Degraded reports whether extraction fell back to raw metadata.
func (r Record) Degraded() bool {
	return r.ProcessingError != ""
}

// WorkingMemory is the per-cycle snapshot of gathered activity handed
// to the synthesis stages. Calendar and Tasks have no gatherers yet
// and stay empty.
type WorkingMemory struct {
	Records   []Record         `json:"records"`
	Calendar  []map[string]any `json:"calendar"`
	Tasks     []map[string]any `json:"tasks"`
	Timestamp string           `json:"timestamp"`
}

// PriorityBuckets split extracted items by how soon they need action.
type PriorityBuckets struct {
	Urgent    []string `json:"urgent"`
	Important []string `json:"important"`
	Deferred  []string `json:"deferred"`
}

// SocialNotes carry the people-related follow-ups from analysis.
type SocialNotes struct {
	RepliesNeeded      []string `json:"replies_needed"`
	RelationshipNudges []string `json:"relationship_nudges"`
}

// Analysis is the structured outcome of the priority analysis stage.
type Analysis struct {
	Priorities          PriorityBuckets `json:"priorities"`
	SocialNotes         SocialNotes     `json:"social_notes"`
	Deadlines           []string        `json:"deadlines"`
	FocusRecommendation string          `json:"focus_recommendation"`
}
