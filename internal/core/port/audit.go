package port

import "context"

// AuditEntry represents a single auditable compile or execute event.
type AuditEntry struct {
	RequestID    string
	Tool         string
	Dataset      string
	SQL          string
	ParamCount   int
	RowsReturned int
	DurationMS   int64
	Executed     bool
	Err          error
}

// QueryAuditor records query audit events.
type QueryAuditor interface {
	Record(ctx context.Context, entry AuditEntry)
	Close() error
}
