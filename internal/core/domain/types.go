package domain

// ColumnType is the semantic type inferred for a dataset column.
type ColumnType string

const (
	TypeBoolean ColumnType = "boolean"
	TypeNumeric ColumnType = "numeric"
	TypeDate    ColumnType = "date"
	TypeString  ColumnType = "string"
)

// Valid reports whether t is one of the four inferred types.
func (t ColumnType) Valid() bool {
	switch t {
	case TypeBoolean, TypeNumeric, TypeDate, TypeString:
		return true
	}
	return false
}

// Role is a business-meaningful column purpose the compiler reasons about
// independently of raw column names.
type Role string

const (
	RoleRegion          Role = "region"
	RoleItemType        Role = "item_type"
	RoleChannel         Role = "channel"
	RoleDate            Role = "date"
	RoleUnitsSold       Role = "units_sold"
	RoleRevenue         Role = "revenue"
	RoleAvgSellingPrice Role = "avg_selling_price"
)

// Roles lists every role in its fixed evaluation order.
var Roles = []Role{
	RoleRegion,
	RoleItemType,
	RoleChannel,
	RoleDate,
	RoleUnitsSold,
	RoleRevenue,
	RoleAvgSellingPrice,
}

// ParseRole returns the Role named s, if any.
func ParseRole(s string) (Role, bool) {
	for _, r := range Roles {
		if string(r) == s {
			return r, true
		}
	}
	return "", false
}

// Categorical reports whether values of r are filtered by set membership.
func (r Role) Categorical() bool {
	switch r {
	case RoleRegion, RoleItemType, RoleChannel:
		return true
	}
	return false
}

// Measure reports whether r is a numeric measure.
func (r Role) Measure() bool {
	switch r {
	case RoleUnitsSold, RoleRevenue, RoleAvgSellingPrice:
		return true
	}
	return false
}

// ProfileStatus tracks the lifecycle of a SchemaProfile.
type ProfileStatus string

const (
	StatusProcessing ProfileStatus = "processing"
	StatusReady      ProfileStatus = "ready"
	StatusError      ProfileStatus = "error"
)

// Terminal reports whether the status can no longer change.
func (s ProfileStatus) Terminal() bool {
	return s == StatusReady || s == StatusError
}
