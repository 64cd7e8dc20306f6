// Package job holds the validated job record consumed by the STAC factories.
// A *Job can only be obtained from New or Decode; a hand-assembled value is
// rejected by every consumer.
package job

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/mohammed-shakir/harmony-core/internal/core/errs"
)

type Status string

const (
	StatusAccepted           Status = "accepted"
	StatusRunning            Status = "running"
	StatusRunningWithErrors  Status = "running_with_errors"
	StatusSuccessful         Status = "successful"
	StatusCompleteWithErrors Status = "complete_with_errors"
	StatusFailed             Status = "failed"
	StatusCanceled           Status = "canceled"
	StatusPaused             Status = "paused"
	StatusPreviewing         Status = "previewing"
)

func (s Status) Valid() bool {
	switch s {
	case StatusAccepted, StatusRunning, StatusRunningWithErrors, StatusSuccessful,
		StatusCompleteWithErrors, StatusFailed, StatusCanceled, StatusPaused, StatusPreviewing:
		return true
	}
	return false
}

// Terminal statuses never change again.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccessful, StatusCompleteWithErrors, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

type Temporal struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

type Link struct {
	Href     string    `json:"href"`
	Title    string    `json:"title,omitempty"`
	Rel      string    `json:"rel,omitempty"`
	Type     string    `json:"type,omitempty"`
	BBox     []float64 `json:"bbox,omitempty"`
	Temporal *Temporal `json:"temporal,omitempty"`
}

const RelData = "data"

// IsData reports whether the link points at job output. Links without a rel
// are treated as output.
func (l Link) IsData() bool { return l.Rel == "" || l.Rel == RelData }

// Record is the plain job field set. It is input to New, never accepted by
// the STAC factories directly.
type Record struct {
	RequestID string `json:"requestId"`
	Request   string `json:"request,omitempty"`
	Username  string `json:"username,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
	Status    Status `json:"status,omitempty"`
	Message   string `json:"message,omitempty"`
	Progress  int    `json:"progress,omitempty"`
	Links     []Link `json:"links,omitempty"`
}

// Job is an immutable, validated job record.
type Job struct {
	rec       Record
	validated bool
}

var now = func() time.Time { return time.Now().UTC() }

// New validates rec and fills defaults: createdAt is now and status is
// accepted when they are empty.
func New(rec Record) (*Job, error) {
	if strings.TrimSpace(rec.RequestID) == "" {
		return nil, fmt.Errorf("%w: job requestId is required", errs.ErrMalformedInput)
	}
	if rec.CreatedAt == "" {
		rec.CreatedAt = now().Format(time.RFC3339)
	} else if _, err := time.Parse(time.RFC3339Nano, rec.CreatedAt); err != nil {
		return nil, fmt.Errorf("%w: job createdAt: %v", errs.ErrMalformedInput, err)
	}
	if rec.Status == "" {
		rec.Status = StatusAccepted
	}
	if !rec.Status.Valid() {
		return nil, fmt.Errorf("%w: job status %q", errs.ErrMalformedInput, rec.Status)
	}
	if rec.Progress < 0 || rec.Progress > 100 {
		return nil, fmt.Errorf("%w: job progress %d outside [0,100]", errs.ErrMalformedInput, rec.Progress)
	}
	links := make([]Link, len(rec.Links))
	for i, l := range rec.Links {
		if err := validateLink(l); err != nil {
			return nil, fmt.Errorf("link %d: %w", i, err)
		}
		links[i] = cloneLink(l)
	}
	rec.Links = links
	return &Job{rec: rec, validated: true}, nil
}

func validateLink(l Link) error {
	if strings.TrimSpace(l.Href) == "" {
		return fmt.Errorf("%w: link href is required", errs.ErrMalformedInput)
	}
	if l.BBox != nil && len(l.BBox) != 4 {
		return fmt.Errorf("%w: link bbox needs 4 entries, got %d", errs.ErrMalformedInput, len(l.BBox))
	}
	if t := l.Temporal; t != nil && t.Start != "" && t.End != "" {
		st, err := time.Parse(time.RFC3339Nano, t.Start)
		if err != nil {
			return fmt.Errorf("%w: link temporal start: %v", errs.ErrMalformedInput, err)
		}
		et, err := time.Parse(time.RFC3339Nano, t.End)
		if err != nil {
			return fmt.Errorf("%w: link temporal end: %v", errs.ErrMalformedInput, err)
		}
		if st.After(et) {
			return fmt.Errorf("%w: link temporal start %s is after end %s", errs.ErrMalformedInput, t.Start, t.End)
		}
	}
	return nil
}

func cloneLink(l Link) Link {
	l.BBox = slices.Clone(l.BBox)
	if l.Temporal != nil {
		t := *l.Temporal
		l.Temporal = &t
	}
	return l
}

// Check returns ErrMalformedInput unless j came from New or Decode.
func Check(j *Job) error {
	if j == nil || !j.validated {
		return fmt.Errorf("%w: job must be built with job.New", errs.ErrMalformedInput)
	}
	return nil
}

func (j *Job) RequestID() string { return j.rec.RequestID }
func (j *Job) Request() string   { return j.rec.Request }
func (j *Job) Username() string  { return j.rec.Username }
func (j *Job) CreatedAt() string { return j.rec.CreatedAt }
func (j *Job) Status() Status    { return j.rec.Status }
func (j *Job) Message() string   { return j.rec.Message }
func (j *Job) Progress() int     { return j.rec.Progress }

// Links returns a copy of all links in order.
func (j *Job) Links() []Link {
	out := make([]Link, len(j.rec.Links))
	for i, l := range j.rec.Links {
		out[i] = cloneLink(l)
	}
	return out
}

// DataLinks returns the output links in order.
func (j *Job) DataLinks() []Link {
	var out []Link
	for _, l := range j.rec.Links {
		if l.IsData() {
			out = append(out, cloneLink(l))
		}
	}
	return out
}

// RelatedLinks returns the non-data links in order.
func (j *Job) RelatedLinks() []Link {
	var out []Link
	for _, l := range j.rec.Links {
		if !l.IsData() {
			out = append(out, cloneLink(l))
		}
	}
	return out
}

// Record returns a copy of the underlying field set.
func (j *Job) Record() Record {
	r := j.rec
	r.Links = j.Links()
	return r
}

func (j *Job) MarshalJSON() ([]byte, error) {
	if err := Check(j); err != nil {
		return nil, err
	}
	return json.Marshal(j.rec)
}

// Decode parses a JSON job record and validates it through New.
func Decode(data []byte) (*Job, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: decode job: %v", errs.ErrMalformedInput, err)
	}
	return New(rec)
}
