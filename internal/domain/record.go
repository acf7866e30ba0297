package domain

import (
	"fmt"
	"regexp"
	"time"
)

var recordIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

// MaxTextSize is the maximum raw record text size in bytes.
// Longer narratives are truncated by the indexer before embedding anyway;
// anything beyond this is almost certainly an ETL bug.
const MaxTextSize = 262144 // 256KB

// Status is the embedding lifecycle state of a record.
type Status string

// Record lifecycle states.
const (
	StatusPending  Status = "pending"
	StatusEmbedded Status = "embedded"
	StatusFailed   Status = "failed"
)

// ParseStatus converts a stored status string back to a Status.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusEmbedded, StatusFailed:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown record status %q", s)
}

// Record is a historical narrative tied to a catalog entry (immutable value object).
// Only the batch indexer transitions its status.
type Record struct {
	id          string
	catalogID   string
	catalogPath string
	text        string
	embedding   []float32
	status      Status
	lastError   string
	updatedAt   time.Time
}

// NewRecord validates and creates a Pending record from a raw ETL tuple.
func NewRecord(id, catalogID, catalogPath, text string, now time.Time) (Record, error) {
	if id == "" {
		return Record{}, fmt.Errorf("record ID is required")
	}
	if len(id) > 256 {
		return Record{}, fmt.Errorf("record ID too long (max 256)")
	}
	if !recordIDRegex.MatchString(id) {
		return Record{}, fmt.Errorf("record ID must be alphanumeric with underscores, dots, and hyphens")
	}
	if catalogID == "" {
		return Record{}, fmt.Errorf("catalog ID is required")
	}
	if catalogPath == "" {
		return Record{}, fmt.Errorf("catalog path is required")
	}
	if text == "" {
		return Record{}, fmt.Errorf("text is required")
	}
	if len(text) > MaxTextSize {
		return Record{}, fmt.Errorf("text too large (max %d bytes)", MaxTextSize)
	}

	return Record{
		id:          id,
		catalogID:   catalogID,
		catalogPath: catalogPath,
		text:        text,
		status:      StatusPending,
		updatedAt:   now,
	}, nil
}

// ReconstructRecord creates a Record without validation (storage hydration).
func ReconstructRecord(
	id, catalogID, catalogPath, text string,
	embedding []float32, status Status, lastError string, updatedAt time.Time,
) Record {
	return Record{
		id: id, catalogID: catalogID, catalogPath: catalogPath, text: text,
		embedding: embedding, status: status, lastError: lastError, updatedAt: updatedAt,
	}
}

// ID returns the record identifier.
func (r *Record) ID() string { return r.id }

// CatalogID returns the catalog entry identifier this record maps to.
func (r *Record) CatalogID() string { return r.catalogID }

// CatalogPath returns the hierarchical catalog label.
func (r *Record) CatalogPath() string { return r.catalogPath }

// Text returns the raw narrative text.
func (r *Record) Text() string { return r.text }

// Embedding returns the embedding vector, nil until embedded.
func (r *Record) Embedding() []float32 { return r.embedding }

// Status returns the embedding lifecycle state.
func (r *Record) Status() Status { return r.status }

// LastError returns the last embedding failure message, empty if none.
func (r *Record) LastError() string { return r.lastError }

// UpdatedAt returns the last status transition time.
func (r *Record) UpdatedAt() time.Time { return r.updatedAt }

// WithEmbedded returns a copy transitioned to Embedded with the given vector.
// Invariant: an Embedded record always carries a non-empty vector.
func (r *Record) WithEmbedded(vec []float32, now time.Time) (Record, error) {
	if len(vec) == 0 {
		return Record{}, fmt.Errorf("embedded record requires a vector: %w", ErrVectorDimMismatch)
	}
	out := *r
	out.embedding = vec
	out.status = StatusEmbedded
	out.lastError = ""
	out.updatedAt = now
	return out, nil
}

// WithFailed returns a copy transitioned to Failed with the error message attached.
func (r *Record) WithFailed(msg string, now time.Time) Record {
	out := *r
	out.embedding = nil
	out.status = StatusFailed
	out.lastError = msg
	out.updatedAt = now
	return out
}

// WithPending returns a copy transitioned back to Pending (operator requeue).
func (r *Record) WithPending(now time.Time) Record {
	out := *r
	out.embedding = nil
	out.status = StatusPending
	out.lastError = ""
	out.updatedAt = now
	return out
}
