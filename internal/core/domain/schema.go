package domain

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/jinzhu/inflection"
)

// ProfileVersion is the document layout version written with every profile.
const ProfileVersion = 1

// Stats holds dataset-wide figures. MinDate and MaxDate are ISO dates taken
// from the full date-role column and are empty when no date role is mapped.
type Stats struct {
	RowCount int64  `json:"rowCount"`
	MinDate  string `json:"minDate,omitempty"`
	MaxDate  string `json:"maxDate,omitempty"`
}

// AmbiguousRole records a role left unmapped because several columns tied
// for it.
type AmbiguousRole struct {
	Role       Role     `json:"role"`
	Candidates []string `json:"candidates"`
	Reason     string   `json:"reason"`
}

// SchemaProfile is the durable description of one dataset table. It is
// created as processing and promoted once to ready or error.
type SchemaProfile struct {
	TableName         string
	FileName          string
	Status            ProfileStatus
	Error             string
	Columns           []ColumnProfile
	RoleMapping       map[Role]string
	AmbiguousRoles    []AmbiguousRole
	DistinctValues    map[Role][]string
	DistinctTruncated []Role
	Stats             Stats
	Version           int
}

// NewPendingProfile returns the placeholder written at upload time.
func NewPendingProfile(table, fileName string) *SchemaProfile {
	return &SchemaProfile{
		TableName: table,
		FileName:  fileName,
		Status:    StatusProcessing,
		Version:   ProfileVersion,
	}
}

// Fail turns p into a terminal error profile carrying reason. Any partial
// profiling results are discarded.
func (p *SchemaProfile) Fail(reason string) {
	p.Status = StatusError
	p.Error = reason
	p.Columns = nil
	p.RoleMapping = nil
	p.AmbiguousRoles = nil
	p.DistinctValues = nil
	p.DistinctTruncated = nil
	p.Stats = Stats{}
}

// Ready reports whether p may be compiled against.
func (p *SchemaProfile) Ready() bool {
	return p != nil && p.Status == StatusReady
}

// Column looks up a catalog column by exact name.
func (p *SchemaProfile) Column(name string) (ColumnProfile, bool) {
	for _, c := range p.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnProfile{}, false
}

// ColumnFor returns the catalog column mapped to role.
func (p *SchemaProfile) ColumnFor(role Role) (ColumnProfile, bool) {
	name, ok := p.RoleMapping[role]
	if !ok || name == "" {
		return ColumnProfile{}, false
	}
	return p.Column(name)
}

// ColumnNames returns the catalog in order.
func (p *SchemaProfile) ColumnNames() []string {
	names := make([]string, len(p.Columns))
	for i, c := range p.Columns {
		names[i] = c.Name
	}
	return names
}

// DistinctComplete reports whether DistinctValues[role] holds every value in
// the column rather than a capped prefix.
func (p *SchemaProfile) DistinctComplete(role Role) bool {
	if _, ok := p.DistinctValues[role]; !ok {
		return false
	}
	return !slices.Contains(p.DistinctTruncated, role)
}

// profileDocument is the persisted JSON layout.
type profileDocument struct {
	Status            ProfileStatus       `json:"status"`
	TableName         string              `json:"tableName"`
	FileName          string              `json:"fileName,omitempty"`
	Error             string              `json:"error,omitempty"`
	ColumnMapping     map[string]*string  `json:"columnMapping"`
	AmbiguousRoles    []AmbiguousRole     `json:"ambiguousRoles,omitempty"`
	DistinctValues    map[string][]string `json:"distinctValues"`
	DistinctTruncated []string            `json:"distinctTruncated,omitempty"`
	Stats             Stats               `json:"stats"`
	Columns           []ColumnProfile     `json:"columns"`
	Version           int                 `json:"version"`
}

// distinctKey is the document key for a role's distinct values: the plural
// role name.
func distinctKey(r Role) string {
	return inflection.Plural(string(r))
}

// MarshalJSON encodes p as a profile document. columnMapping always lists
// every role, with null for unmapped ones.
func (p SchemaProfile) MarshalJSON() ([]byte, error) {
	doc := profileDocument{
		Status:         p.Status,
		TableName:      p.TableName,
		FileName:       p.FileName,
		Error:          p.Error,
		ColumnMapping:  make(map[string]*string, len(Roles)),
		AmbiguousRoles: p.AmbiguousRoles,
		DistinctValues: make(map[string][]string, len(p.DistinctValues)),
		Stats:          p.Stats,
		Columns:        p.Columns,
		Version:        p.Version,
	}
	for _, r := range Roles {
		if name, ok := p.RoleMapping[r]; ok && name != "" {
			doc.ColumnMapping[string(r)] = &name
		} else {
			doc.ColumnMapping[string(r)] = nil
		}
	}
	for r, values := range p.DistinctValues {
		doc.DistinctValues[distinctKey(r)] = values
	}
	for _, r := range p.DistinctTruncated {
		doc.DistinctTruncated = append(doc.DistinctTruncated, string(r))
	}
	if doc.Columns == nil {
		doc.Columns = []ColumnProfile{}
	}
	return json.Marshal(doc)
}

// UnmarshalJSON decodes a profile document. Distinct-value keys may be plural
// or singular role names.
func (p *SchemaProfile) UnmarshalJSON(data []byte) error {
	var doc profileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	out := SchemaProfile{
		TableName:      doc.TableName,
		FileName:       doc.FileName,
		Status:         doc.Status,
		Error:          doc.Error,
		Columns:        doc.Columns,
		RoleMapping:    make(map[Role]string),
		AmbiguousRoles: doc.AmbiguousRoles,
		DistinctValues: make(map[Role][]string),
		Stats:          doc.Stats,
		Version:        doc.Version,
	}
	for key, name := range doc.ColumnMapping {
		role, ok := ParseRole(key)
		if !ok {
			return fmt.Errorf("columnMapping: %w: %q", ErrUnsupportedRole, key)
		}
		if name != nil && *name != "" {
			out.RoleMapping[role] = *name
		}
	}
	for _, r := range Roles {
		if values, ok := doc.DistinctValues[distinctKey(r)]; ok {
			out.DistinctValues[r] = values
		} else if values, ok := doc.DistinctValues[string(r)]; ok {
			out.DistinctValues[r] = values
		}
	}
	for _, key := range doc.DistinctTruncated {
		if role, ok := ParseRole(key); ok {
			out.DistinctTruncated = append(out.DistinctTruncated, role)
		}
	}
	*p = out
	return nil
}
