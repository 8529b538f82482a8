package types

import "time"

// ThreadKind distinguishes the daily index thread from per-item detail threads
type ThreadKind string

const (
	ThreadIndex  ThreadKind = "index"
	ThreadDetail ThreadKind = "detail"
)

// Post is one entry of a thread. ReplyTo is the position of the parent post
// inside the same thread, or -1 for the post that starts the thread.
type Post struct {
	Text    string `json:"text"`
	ReplyTo int    `json:"reply_to"`
}

// Thread is an ordered chain of posts, each replying to the previous one
type Thread struct {
	Index int        `json:"index"`
	Kind  ThreadKind `json:"kind"`
	Posts []Post     `json:"posts"`
	// Fallback marks a detail thread built from fallback text
	Fallback bool `json:"fallback,omitempty"`
}

// Plan is the composed output of a run, handed to the publisher. Degraded and
// Notes describe how the content was produced and are persisted with it.
type Plan struct {
	Threads  []Thread `json:"threads"`
	Degraded bool     `json:"degraded,omitempty"`
	Notes    []string `json:"notes,omitempty"`
}

// FallbackThreads counts detail threads built from fallback text
func (p Plan) FallbackThreads() int {
	n := 0
	for _, t := range p.Threads {
		if t.Fallback {
			n++
		}
	}
	return n
}

// ThreadStatus tracks publication progress of a thread inside a RunState
type ThreadStatus string

const (
	ThreadPending   ThreadStatus = "pending"
	ThreadPartial   ThreadStatus = "partial"
	ThreadPublished ThreadStatus = "published"
	ThreadFailed    ThreadStatus = "failed"
	ThreadSkipped   ThreadStatus = "skipped"
)

// PostRecord is the persisted form of a Post. ID is set only after the
// posting collaborator confirmed creation.
type PostRecord struct {
	Text        string     `json:"text"`
	ID          string     `json:"id,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// Published reports whether the post has a confirmed ID
func (p PostRecord) Published() bool {
	return p.ID != ""
}

// ThreadRecord is the persisted progress of one thread
type ThreadRecord struct {
	Index  int          `json:"index"`
	Kind   ThreadKind   `json:"kind"`
	Status ThreadStatus `json:"status"`
	Posts  []PostRecord `json:"posts"`
	Error  string       `json:"error,omitempty"`
	// Fallback is copied from the plan
	Fallback bool `json:"fallback,omitempty"`
}

// PublishedCount returns the number of posts with a confirmed ID
func (t ThreadRecord) PublishedCount() int {
	n := 0
	for _, p := range t.Posts {
		if p.Published() {
			n++
		}
	}
	return n
}

// LastPostID returns the ID of the last confirmed post, or "" if none
func (t ThreadRecord) LastPostID() string {
	id := ""
	for _, p := range t.Posts {
		if p.Published() {
			id = p.ID
		}
	}
	return id
}

// RunState is the durable record of one run date. It holds the composed plan
// (post texts) and the IDs of every confirmed post so that a re-run for the
// same date resumes instead of reposting.
type RunState struct {
	RunDate   string         `json:"run_date"`
	RunID     string         `json:"run_id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Threads   []ThreadRecord `json:"threads"`
	Degraded  bool           `json:"degraded"`
	Notes     []string       `json:"notes,omitempty"`
}

// PublishedPosts counts confirmed posts across all threads
func (s *RunState) PublishedPosts() int {
	n := 0
	for _, t := range s.Threads {
		n += t.PublishedCount()
	}
	return n
}

// Complete reports whether every thread reached a terminal published state
func (s *RunState) Complete() bool {
	for _, t := range s.Threads {
		if t.Status != ThreadPublished {
			return false
		}
	}
	return len(s.Threads) > 0
}

// AddNote appends a diagnostic line, skipping exact repeats
func (s *RunState) AddNote(note string) {
	for _, n := range s.Notes {
		if n == note {
			return
		}
	}
	s.Notes = append(s.Notes, note)
}

// ThreadsFromPlan builds pending thread records from composed threads
func ThreadsFromPlan(threads []Thread) []ThreadRecord {
	records := make([]ThreadRecord, 0, len(threads))
	for _, t := range threads {
		posts := make([]PostRecord, len(t.Posts))
		for i, p := range t.Posts {
			posts[i] = PostRecord{Text: p.Text}
		}
		records = append(records, ThreadRecord{
			Index:    t.Index,
			Kind:     t.Kind,
			Status:   ThreadPending,
			Posts:    posts,
			Fallback: t.Fallback,
		})
	}
	return records
}
