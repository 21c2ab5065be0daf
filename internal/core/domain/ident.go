package domain

import (
	"regexp"

	"github.com/jackc/pgx/v5"
)

var bareIdent = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// sqlKeywords are the PostgreSQL reserved, type/function-name, and
// column-name keywords. Any of them must be quoted to be read as a column.
var sqlKeywords = map[string]bool{
	"all": true, "analyse": true, "analyze": true, "and": true, "any": true, "array": true,
	"as": true, "asc": true, "asymmetric": true, "authorization": true, "between": true,
	"bigint": true, "binary": true, "bit": true, "boolean": true, "both": true, "case": true,
	"cast": true, "char": true, "character": true, "check": true, "coalesce": true,
	"collate": true, "collation": true, "column": true, "concurrently": true,
	"constraint": true, "create": true, "cross": true, "current_catalog": true,
	"current_date": true, "current_role": true, "current_schema": true, "current_time": true,
	"current_timestamp": true, "current_user": true, "dec": true, "decimal": true,
	"default": true, "deferrable": true, "desc": true, "distinct": true, "do": true,
	"else": true, "end": true, "except": true, "exists": true, "extract": true, "false": true,
	"fetch": true, "float": true, "for": true, "foreign": true, "freeze": true, "from": true,
	"full": true, "grant": true, "greatest": true, "group": true, "grouping": true,
	"having": true, "ilike": true, "in": true, "initially": true, "inner": true, "inout": true,
	"int": true, "integer": true, "intersect": true, "interval": true, "into": true, "is": true,
	"isnull": true, "join": true, "lateral": true, "leading": true, "least": true, "left": true,
	"like": true, "limit": true, "localtime": true, "localtimestamp": true, "national": true,
	"natural": true, "nchar": true, "none": true, "normalize": true, "not": true,
	"notnull": true, "null": true, "nullif": true, "numeric": true, "offset": true, "on": true,
	"only": true, "or": true, "order": true, "out": true, "outer": true, "overlaps": true,
	"overlay": true, "placing": true, "position": true, "precision": true, "primary": true,
	"real": true, "references": true, "returning": true, "right": true, "row": true,
	"select": true, "session_user": true, "setof": true, "similar": true, "smallint": true,
	"some": true, "substring": true, "symmetric": true, "system_user": true, "table": true,
	"tablesample": true, "then": true, "time": true, "timestamp": true, "to": true,
	"trailing": true, "treat": true, "trim": true, "true": true, "union": true, "unique": true,
	"user": true, "using": true, "values": true, "varchar": true, "variadic": true,
	"verbose": true, "when": true, "where": true, "window": true, "with": true,
}

// QuoteIdent renders name as an SQL identifier. Plain lower-case names that
// are not keywords stay bare; everything else is double-quoted. Callers must
// only pass names already checked against the column catalog.
func QuoteIdent(name string) string {
	if bareIdent.MatchString(name) && !sqlKeywords[name] {
		return name
	}
	return pgx.Identifier{name}.Sanitize()
}
