package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

type User struct {
	ID              string
	DisplayName     string
	Email           string
	PasswordHash    string
	IsEmailVerified bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Entry is the atomic organizable unit: a note, task, or option.
// Rank is a float defining the position in the shared global order;
// only relative order matters. VoteSum and Labels are aggregates
// loaded alongside the row for filtering and sorting.
type Entry struct {
	Key       string
	Title     string
	Content   string
	Type      string
	Status    string
	Rank      float64
	Stars     float64
	VoteSum   int
	Labels    []string
	CreatedAt time.Time
	UpdatedAt time.Time
	CreatedBy string
}

// EntryUpdate carries the mutable entry fields for a partial update.
// Nil pointers leave the current value untouched.
type EntryUpdate struct {
	Title   *string
	Content *string
	Type    *string
	Status  *string
}

type Vote struct {
	EntryKey string
	Voter    string
	Value    int // -1, 0, or 1
}

type Rating struct {
	EntryKey  string
	UserID    string
	Rating    float64
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Label struct {
	Label string
	Color string
}

// Relation links an entry to another entry with a named relation kind.
type Relation struct {
	Type      string
	TargetKey string
}

// Assembly is a saved, named view configuration over entries.
type Assembly struct {
	ID          string
	Name        string
	Description string
	Owner       string
	SortOrder   string
	IsDefault   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// AssemblyFilterRow is one persisted AND-filter instance.
type AssemblyFilterRow struct {
	FilterType    string
	Value         string
	VisibleInView bool
}

// AssemblyConfig bundles the side-table rows owned by one assembly.
type AssemblyConfig struct {
	Includes []string
	Excludes []string
	Filters  []AssemblyFilterRow
	Columns  map[string]bool
}
