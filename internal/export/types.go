// Package export renders meeting reports from entry lists and converts
// them to PDF.
package export

import (
	"errors"
	"time"
)

// Kind selects the report layout.
type Kind string

const (
	KindAgenda   Kind = "agenda"
	KindProtocol Kind = "protocol"
	KindTodo     Kind = "todo"
	KindReport   Kind = "report"
)

// Request contains parameters for a report generation.
type Request struct {
	Kind        Kind
	Title       string
	GeneratedBy string
	Meeting     *MeetingInfo
	Attendees   []string
	Rows        []Row
}

// MeetingInfo carries the optional meeting header printed on agenda
// and protocol reports.
type MeetingInfo struct {
	Date     string `json:"date"`
	Time     string `json:"time"`
	Duration string `json:"duration"`
	Location string `json:"location"`
}

// Row is one entry as it appears in a report.
type Row struct {
	Key       string
	Title     string
	Content   string
	Type      string
	Status    string
	Rank      float64
	Stars     float64
	VoteSum   int
	Labels    []string
	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Result describes a generated report file on disk.
type Result struct {
	Filename  string    `json:"filename"`
	Path      string    `json:"-"`
	MimeType  string    `json:"mimeType"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
}

var (
	// ErrUnknownKind indicates an unsupported report kind was requested.
	ErrUnknownKind = errors.New("unknown report kind")
	// ErrPDFDependencyMissing indicates PDF rendering runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("report pdf dependency missing")
)
