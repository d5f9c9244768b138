package plan

import (
	"time"

	"github.com/andresuchdata/cloudpath/internal/storage"
	"github.com/google/uuid"
)

// Operation names the bulk transform a plan was built for.
type Operation string

const (
	OpRename Operation = "rename"
	OpMove   Operation = "move"
)

// Status represents the current state of a plan run
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// StepState tracks one source/destination pair through the two phases.
type StepState string

const (
	StepPending StepState = "pending"
	StepCopied  StepState = "copied"
	StepDeleted StepState = "deleted"
	StepFailed  StepState = "failed"
)

// Step is one copy-then-delete pair.
type Step struct {
	Index       int                  `json:"index" yaml:"index"`
	Source      storage.RemoteObject `json:"source" yaml:"source"`
	Destination string               `json:"destination" yaml:"destination"`
	State       StepState            `json:"state" yaml:"state"`
	Error       string               `json:"error,omitempty" yaml:"error,omitempty"`
}

// Copied reports whether the copy for this step has already landed.
func (s Step) Copied() bool {
	return s.State == StepCopied || s.State == StepDeleted
}

// Plan is the ordered list of steps a bulk rename or move will execute.
type Plan struct {
	ID          string     `json:"id" yaml:"id"`
	Backend     string     `json:"backend" yaml:"backend"`
	Operation   Operation  `json:"operation" yaml:"operation"`
	Source      string     `json:"source" yaml:"source"`
	From        string     `json:"from,omitempty" yaml:"from,omitempty"`
	To          string     `json:"to,omitempty" yaml:"to,omitempty"`
	Destination string     `json:"destination,omitempty" yaml:"destination,omitempty"`
	DryRun      bool       `json:"dryRun" yaml:"dryRun"`
	Status      Status     `json:"status" yaml:"status"`
	Steps       []Step     `json:"steps" yaml:"steps"`
	Error       string     `json:"error,omitempty" yaml:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt" yaml:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty" yaml:"completedAt,omitempty"`
}

// New starts an empty pending plan.
func New(backend string, op Operation, source string) *Plan {
	return &Plan{
		ID:        uuid.NewString(),
		Backend:   backend,
		Operation: op,
		Source:    source,
		Status:    StatusPending,
		Steps:     []Step{},
		CreatedAt: time.Now().UTC(),
	}
}

// Add appends a pending step.
func (p *Plan) Add(src storage.RemoteObject, dst string) {
	p.Steps = append(p.Steps, Step{
		Index:       len(p.Steps),
		Source:      src,
		Destination: dst,
		State:       StepPending,
	})
}

func (p *Plan) Len() int {
	return len(p.Steps)
}

// Count returns how many steps are in state.
func (p *Plan) Count(state StepState) int {
	n := 0
	for _, s := range p.Steps {
		if s.State == state {
			n++
		}
	}
	return n
}

// Pairs returns the source key to destination key mapping in step order.
func (p *Plan) Pairs() [][2]string {
	out := make([][2]string, 0, len(p.Steps))
	for _, s := range p.Steps {
		out = append(out, [2]string{s.Source.Key, s.Destination})
	}
	return out
}

// Finish stamps the terminal status.
func (p *Plan) Finish(status Status, err error) {
	now := time.Now().UTC()
	p.Status = status
	p.CompletedAt = &now
	if err != nil {
		p.Error = err.Error()
	} else {
		p.Error = ""
	}
}

// Done reports whether every step has been copied and deleted.
func (p *Plan) Done() bool {
	return p.Count(StepDeleted) == len(p.Steps)
}

// Summary is the short form used by plan listings.
type Summary struct {
	ID        string    `json:"id" yaml:"id"`
	Backend   string    `json:"backend" yaml:"backend"`
	Operation Operation `json:"operation" yaml:"operation"`
	Source    string    `json:"source" yaml:"source"`
	Status    Status    `json:"status" yaml:"status"`
	Steps     int       `json:"steps" yaml:"steps"`
	CreatedAt time.Time `json:"createdAt" yaml:"createdAt"`
}

func (p *Plan) Summary() Summary {
	return Summary{
		ID:        p.ID,
		Backend:   p.Backend,
		Operation: p.Operation,
		Source:    p.Source,
		Status:    p.Status,
		Steps:     len(p.Steps),
		CreatedAt: p.CreatedAt,
	}
}
