// Package ledger maintains the append-only, single-current version history
// of a document. Every version carries a complete text snapshot, never a
// diff, so reconstruction of any prior state is a field read.
package ledger

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"clauseguard/api/internal/util"
)

// Status is the lifecycle state of a version. The only transition is
// current -> archived; archived is terminal.
type Status string

const (
	StatusCurrent  Status = "current"
	StatusArchived Status = "archived"
)

// Sequence is an explicit (major, minor) version number. Minor grows without
// bound (1.9 -> 1.10); major is reserved for re-analysis from scratch.
type Sequence struct {
	Major int
	Minor int
}

// Seed is the sequence of the version created at document upload.
var Seed = Sequence{Major: 1, Minor: 0}

func (s Sequence) Next() Sequence {
	return Sequence{Major: s.Major, Minor: s.Minor + 1}
}

func (s Sequence) String() string {
	return strconv.Itoa(s.Major) + "." + strconv.Itoa(s.Minor)
}

// ParseSequence parses "major.minor" with both parts plain integers.
func ParseSequence(raw string) (Sequence, error) {
	parts := strings.SplitN(strings.TrimSpace(raw), ".", 2)
	if len(parts) != 2 {
		return Sequence{}, fmt.Errorf("malformed sequence %q", raw)
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return Sequence{}, fmt.Errorf("malformed sequence %q", raw)
	}
	minor, err := strconv.Atoi(parts[1])
	if err != nil {
		return Sequence{}, fmt.Errorf("malformed sequence %q", raw)
	}
	return Sequence{Major: major, Minor: minor}, nil
}

// ClauseChange describes the single clause edit that produced a version.
type ClauseChange struct {
	ClauseID     string
	OriginalText string
	NewText      string
}

// Version is one committed, fully-snapshotted document state.
type Version struct {
	ID                string
	Sequence          Sequence
	Timestamp         time.Time
	Author            string
	Status            Status
	ChangeDescription string
	Change            *ClauseChange
	Snapshot          string
}

var (
	ErrNoVersions = errors.New("version ledger is empty")
	ErrNotFound   = errors.New("version not found")
)

// Ledger is the ordered version history for one document, oldest first.
type Ledger struct {
	versions []*Version
}

// NewSeeded creates a ledger with the initial 1.0 version holding the
// freshly extracted document text.
func NewSeeded(snapshot, author string) *Ledger {
	return &Ledger{versions: []*Version{{
		ID:                util.NewID("ver"),
		Sequence:          Seed,
		Timestamp:         time.Now().UTC(),
		Author:            author,
		Status:            StatusCurrent,
		ChangeDescription: "Document uploaded and analyzed",
		Snapshot:          snapshot,
	}}}
}

// Load rebuilds a ledger from persisted versions (oldest first) and checks
// the single-current invariant. A violation here is a defect in the storage
// layer, not a user error.
func Load(versions []*Version) (*Ledger, error) {
	current := 0
	for _, v := range versions {
		if v.Status == StatusCurrent {
			current++
		}
	}
	if len(versions) > 0 && current != 1 {
		return nil, fmt.Errorf("ledger invariant violated: %d current versions", current)
	}
	return &Ledger{versions: versions}, nil
}

// Commit archives the current version and appends a new current one carrying
// the full post-change snapshot.
func (l *Ledger) Commit(snapshot string, change *ClauseChange, author, description string) (*Version, error) {
	current, err := l.Current()
	if err != nil {
		return nil, err
	}
	current.Status = StatusArchived

	next := &Version{
		ID:                util.NewID("ver"),
		Sequence:          current.Sequence.Next(),
		Timestamp:         time.Now().UTC(),
		Author:            author,
		Status:            StatusCurrent,
		ChangeDescription: description,
		Change:            change,
		Snapshot:          snapshot,
	}
	l.versions = append(l.versions, next)
	return next, nil
}

// Current returns the unique version with status current.
func (l *Ledger) Current() (*Version, error) {
	if len(l.versions) == 0 {
		return nil, ErrNoVersions
	}
	// The current version is always the newest; scan from the tail so a
	// corrupted ledger is caught by Load, not masked here.
	for i := len(l.versions) - 1; i >= 0; i-- {
		if l.versions[i].Status == StatusCurrent {
			return l.versions[i], nil
		}
	}
	return nil, fmt.Errorf("ledger invariant violated: no current version")
}

// Get returns the version with the given id.
func (l *Ledger) Get(id string) (*Version, error) {
	for _, v := range l.versions {
		if v.ID == id {
			return v, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// List returns versions oldest first. The slice is shared; callers must not
// mutate it.
func (l *Ledger) List() []*Version {
	return l.versions
}

// Len returns the number of versions.
func (l *Ledger) Len() int {
	return len(l.versions)
}
