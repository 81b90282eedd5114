package export

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Format is the target file format for an export.
type Format string

const (
	FormatPDF Format = "PDF"
	FormatPNG Format = "PNG"
)

// ParseFormat validates a user-supplied format name, case-insensitively.
func ParseFormat(raw string) (Format, error) {
	switch strings.ToUpper(raw) {
	case string(FormatPDF):
		return FormatPDF, nil
	case string(FormatPNG):
		return FormatPNG, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", raw)
	}
}

// Request describes one report export. Constructed once per invocation and
// never mutated.
type Request struct {
	ReportID    string
	WorkspaceID string
	Format      Format
	PageNames   []string // Empty: export every page
	URLFilter   string
}

// State of an export job as reported by the service.
type State string

const (
	StatePending   State = "Pending"
	StateRunning   State = "Running"
	StateSucceeded State = "Succeeded"
	StateFailed    State = "Failed"
)

// Terminal reports whether further polling is meaningful for this state.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// ParseState normalizes a service-reported status value. Only the terminal
// states and "Running" are recognized; anything else, including an absent
// value, is treated as pending.
func ParseState(raw string) State {
	switch raw {
	case string(StateSucceeded):
		return StateSucceeded
	case string(StateFailed):
		return StateFailed
	case string(StateRunning):
		return StateRunning
	default:
		return StatePending
	}
}

// Status is one immutable snapshot from a status poll. Each poll produces a
// fresh snapshot; the orchestrator retains only the latest.
type Status struct {
	ID               string
	State            State
	RetryAfter       time.Duration // Zero when the service supplied none
	ResourceLocation string        // Set only on success
	ReportName       string        // Set only on success
	FileExtension    string        // Set only on success
}

// API is the client surface the orchestrator drives. Each call is a single
// network round trip with no internal retry and no caching.
type API interface {
	// Submit starts an export and returns its job ID.
	Submit(ctx context.Context, req Request) (string, error)

	// Status fetches a fresh snapshot for a previously submitted export.
	// Repeating the call on a terminal export returns an identical snapshot.
	Status(ctx context.Context, req Request, exportID string) (*Status, error)

	// Download retrieves the complete artifact bytes from the resource
	// location reported by a succeeded status.
	Download(ctx context.Context, resourceLocation string) ([]byte, error)
}
