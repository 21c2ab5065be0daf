package domain

import (
	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// outputAliases returns the set of names the SELECT list exposes through an
// AS clause. ORDER BY may refer to these in place of catalog columns.
func outputAliases(sel *pg_query.SelectStmt) map[string]bool {
	aliases := make(map[string]bool)
	if sel == nil {
		return aliases
	}
	for _, target := range sel.TargetList {
		rt, ok := target.Node.(*pg_query.Node_ResTarget)
		if !ok || rt.ResTarget == nil {
			continue
		}
		if rt.ResTarget.Name != "" {
			aliases[rt.ResTarget.Name] = true
		}
	}
	return aliases
}
