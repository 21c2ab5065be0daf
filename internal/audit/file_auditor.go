package audit

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/guillermoBallester/tally/internal/core/domain"
	"github.com/guillermoBallester/tally/internal/core/port"
)

// fileEntry is the NDJSON form of an audit record. SQL is the named-parameter
// template; bound values are never written.
type fileEntry struct {
	Timestamp    string  `json:"ts"`
	RequestID    string  `json:"request_id"`
	Tool         string  `json:"tool,omitempty"`
	Dataset      string  `json:"dataset"`
	SQL          string  `json:"sql,omitempty"`
	ParamCount   int     `json:"param_count"`
	RowsReturned int     `json:"rows_returned"`
	DurationMS   int64   `json:"duration_ms"`
	Executed     bool    `json:"executed"`
	ErrorKind    string  `json:"error_kind,omitempty"`
	Error        *string `json:"error"`
}

// FileAuditor writes audit entries as NDJSON (one JSON object per line) to a file.
type FileAuditor struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewFileAuditor opens (or creates) the file at path for append-only writing.
func NewFileAuditor(path string) (*FileAuditor, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, err
	}
	return &FileAuditor{
		file: f,
		enc:  json.NewEncoder(f),
	}, nil
}

func (a *FileAuditor) Record(_ context.Context, entry port.AuditEntry) {
	fe := fileEntry{
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		RequestID:    entry.RequestID,
		Tool:         entry.Tool,
		Dataset:      entry.Dataset,
		SQL:          entry.SQL,
		ParamCount:   entry.ParamCount,
		RowsReturned: entry.RowsReturned,
		DurationMS:   entry.DurationMS,
		Executed:     entry.Executed,
	}
	if entry.Err != nil {
		s := entry.Err.Error()
		fe.Error = &s
		fe.ErrorKind = domain.ErrorKind(entry.Err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	_ = a.enc.Encode(fe) // best-effort; don't fail the request for audit I/O
}

func (a *FileAuditor) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.file.Close()
}

// NoopAuditor discards all audit entries.
type NoopAuditor struct{}

func (NoopAuditor) Record(context.Context, port.AuditEntry) {}
func (NoopAuditor) Close() error                            { return nil }
