package export

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"organaizer/api/internal/util"
)

// cleanupDelay is how long a generated report stays on disk before it
// is removed.
const cleanupDelay = 10 * time.Minute

// Service renders reports and manages their lifetime on disk.
type Service struct {
	reportsDir string
}

func NewService(reportsDir string) (*Service, error) {
	if err := os.MkdirAll(reportsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create reports dir: %w", err)
	}
	return &Service{reportsDir: reportsDir}, nil
}

// Generate renders the report HTML, converts it to PDF and writes the
// file into the reports directory. The file is deleted after
// cleanupDelay; clients must download it before then.
func (s *Service) Generate(req Request) (Result, error) {
	data := TemplateData{
		Title:       req.Title,
		GeneratedBy: req.GeneratedBy,
		GeneratedAt: time.Now(),
		Meeting:     req.Meeting,
		Attendees:   req.Attendees,
		Rows:        req.Rows,
	}
	html, err := RenderReportHTML(req.Kind, data)
	if err != nil {
		return Result{}, err
	}

	pdf, err := renderPDF(html)
	if err != nil {
		return Result{}, err
	}

	filename := fmt.Sprintf("%s_%s_%s.pdf", req.Kind, sanitizeFilename(req.Title), util.NewID(""))
	path := filepath.Join(s.reportsDir, filename)
	if err := os.WriteFile(path, pdf, 0o644); err != nil {
		return Result{}, fmt.Errorf("write report file: %w", err)
	}
	s.scheduleCleanup(path)

	return Result{
		Filename:  filename,
		Path:      path,
		MimeType:  "application/pdf",
		Size:      int64(len(pdf)),
		CreatedAt: data.GeneratedAt,
	}, nil
}

// Resolve maps a report filename back to its on-disk path, rejecting
// anything that would escape the reports directory.
func (s *Service) Resolve(filename string) (string, error) {
	if filename == "" || filename != filepath.Base(filename) {
		return "", fmt.Errorf("invalid report filename")
	}
	path := filepath.Join(s.reportsDir, filename)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("report not found: %w", err)
	}
	return path, nil
}

func (s *Service) scheduleCleanup(path string) {
	time.AfterFunc(cleanupDelay, func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Printf("export: cleanup %s: %v", path, err)
		}
	})
}
