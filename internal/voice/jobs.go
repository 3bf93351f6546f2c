package voice

import (
	"slices"
	"sync"
	"time"

	"github.com/MrWong99/jargonaut/internal/transcript"
)

// Job statuses.
const (
	JobInProgress = "in_progress"
	JobCompleted  = "completed"
	JobFailed     = "failed"
)

// DefaultJobLimit bounds the job registry.
const DefaultJobLimit = 100

// Job records one transcription.
type Job struct {
	Name         string                  `json:"name"`
	Status       string                  `json:"status"`
	LanguageCode string                  `json:"language_code"`
	MediaFormat  string                  `json:"media_format"`
	CreatedAt    time.Time               `json:"created_at"`
	CompletedAt  *time.Time              `json:"completed_at,omitempty"`
	Text         string                  `json:"text"`
	Confidence   float64                 `json:"confidence"`
	Error        string                  `json:"error,omitempty"`
	Corrections  []transcript.Correction `json:"corrections,omitempty"`
}

// jobRegistry keeps the most recent jobs in insertion order. When full the
// oldest job is evicted.
type jobRegistry struct {
	mu    sync.Mutex
	limit int
	order []string
	jobs  map[string]Job
}

func newJobRegistry(limit int) *jobRegistry {
	if limit <= 0 {
		limit = DefaultJobLimit
	}
	return &jobRegistry{limit: limit, jobs: make(map[string]Job, limit)}
}

// put inserts or replaces j. Replacing keeps the job's original position.
func (r *jobRegistry) put(j Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[j.Name]; !ok {
		r.order = append(r.order, j.Name)
		for len(r.order) > r.limit {
			delete(r.jobs, r.order[0])
			r.order = r.order[1:]
		}
	}
	r.jobs[j.Name] = j
}

func (r *jobRegistry) get(name string) (Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[name]
	return j, ok
}

func (r *jobRegistry) remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[name]; !ok {
		return false
	}
	delete(r.jobs, name)
	r.order = slices.DeleteFunc(r.order, func(n string) bool { return n == name })
	return true
}

// list returns up to limit jobs, newest first.
func (r *jobRegistry) list(limit int) []Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit <= 0 || limit > len(r.order) {
		limit = len(r.order)
	}
	out := make([]Job, 0, limit)
	for i := len(r.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.jobs[r.order[i]])
	}
	return out
}
