package domain

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Scoring weights for the role mapper.
const (
	exactNameScore   = 5
	partialNameScore = 2
	dateTypeBonus    = 3
	measureTypeBonus = 2
	labelTypeBonus   = 1
	minRoleScore     = 2
)

// DefaultRoleKeywords are the built-in synonyms per role. Keywords are
// compared against normalized column names.
var DefaultRoleKeywords = map[Role][]string{
	RoleRegion:          {"region", "territory", "market", "area"},
	RoleItemType:        {"item_type", "item", "productline", "product_line", "category", "product"},
	RoleChannel:         {"channel", "sales_channel", "online", "offline"},
	RoleDate:            {"date", "orderdate", "order_date", "transactiondate", "transaction_date"},
	RoleUnitsSold:       {"units_sold", "units", "quantity", "qty", "quantityordered", "quantity_ordered"},
	RoleRevenue:         {"revenue", "sales", "total_revenue", "amount", "total_sales", "turnover"},
	RoleAvgSellingPrice: {"avg_price", "average_price", "price", "priceeach", "unit_price", "unitprice"},
}

// MergeRoleKeywords returns base extended with extra, normalized and without
// duplicates. Neither input is modified.
func MergeRoleKeywords(base, extra map[Role][]string) map[Role][]string {
	out := make(map[Role][]string, len(Roles))
	for _, r := range Roles {
		var kws []string
		for _, kw := range slices.Concat(base[r], extra[r]) {
			kw = NormalizeColumnName(kw)
			if kw != "" && !slices.Contains(kws, kw) {
				kws = append(kws, kw)
			}
		}
		out[r] = kws
	}
	return out
}

// NormalizeColumnName folds accents, lowercases, and replaces every run of
// non-alphanumeric characters with a single underscore.
func NormalizeColumnName(name string) string {
	folded, _, err := transform.String(
		transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC),
		name,
	)
	if err != nil {
		folded = name
	}

	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	return b.String()
}

// ScoreColumn scores one column for role. Each keyword contributes the exact
// score when it equals the normalized name, otherwise the partial score when
// it occurs inside it.
func ScoreColumn(role Role, col ColumnProfile, keywords []string) int {
	name := NormalizeColumnName(col.Name)
	score := 0
	for _, kw := range keywords {
		switch {
		case name == kw:
			score += exactNameScore
		case strings.Contains(name, kw):
			score += partialNameScore
		}
	}

	switch {
	case role == RoleDate && col.Type == TypeDate:
		score += dateTypeBonus
	case role.Measure() && col.Type == TypeNumeric:
		score += measureTypeBonus
	case role.Categorical() && col.Type == TypeString:
		score += labelTypeBonus
	}
	return score
}

// RoleAssignment is the result of mapping roles onto a column catalog.
type RoleAssignment struct {
	Mapping   map[Role]string
	Ambiguous []AmbiguousRole
}

type roleCandidate struct {
	role    Role
	roleIdx int
	column  string
	colIdx  int
	score   int
}

// MapRoles assigns each role at most one column and each column at most one
// role. Candidates are taken greedily by descending score. When a role's best
// remaining score is shared by several free columns, or a column is the best
// remaining candidate of several roles at the same score, the affected roles
// are reported as ambiguous and left unmapped. A contested column is not
// offered to lower-scoring roles.
func MapRoles(columns []ColumnProfile, keywords map[Role][]string) RoleAssignment {
	if keywords == nil {
		keywords = DefaultRoleKeywords
	}

	var cands []roleCandidate
	for ri, r := range Roles {
		for ci, c := range columns {
			s := ScoreColumn(r, c, keywords[r])
			if s >= minRoleScore {
				cands = append(cands, roleCandidate{role: r, roleIdx: ri, column: c.Name, colIdx: ci, score: s})
			}
		}
	}
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.roleIdx != b.roleIdx {
			return a.roleIdx < b.roleIdx
		}
		return a.colIdx < b.colIdx
	})

	out := RoleAssignment{Mapping: make(map[Role]string)}
	settled := make(map[Role]bool)
	taken := make(map[string]bool)

	for start := 0; start < len(cands); {
		end := start
		for end < len(cands) && cands[end].score == cands[start].score {
			end++
		}
		group := cands[start:end]
		start = end

		// Free columns per unsettled role at this score.
		byRole := make(map[Role][]string)
		var order []Role
		for _, c := range group {
			if settled[c.role] || taken[c.column] {
				continue
			}
			if _, ok := byRole[c.role]; !ok {
				order = append(order, c.role)
			}
			byRole[c.role] = append(byRole[c.role], c.column)
		}

		// Columns that are the sole candidate of more than one role.
		claims := make(map[string][]Role)
		for _, r := range order {
			if cols := byRole[r]; len(cols) == 1 {
				claims[cols[0]] = append(claims[cols[0]], r)
			}
		}

		score := group[0].score
		for _, r := range order {
			cols := byRole[r]
			switch {
			case len(cols) > 1:
				out.Ambiguous = append(out.Ambiguous, AmbiguousRole{
					Role:       r,
					Candidates: cols,
					Reason:     fmt.Sprintf("%d columns tied at score %d", len(cols), score),
				})
			case len(claims[cols[0]]) > 1:
				out.Ambiguous = append(out.Ambiguous, AmbiguousRole{
					Role:       r,
					Candidates: cols,
					Reason:     fmt.Sprintf("column also best for %s at score %d", otherRoles(claims[cols[0]], r), score),
				})
				taken[cols[0]] = true
			default:
				out.Mapping[r] = cols[0]
				taken[cols[0]] = true
			}
			settled[r] = true
		}
	}
	return out
}

func otherRoles(roles []Role, self Role) string {
	var names []string
	for _, r := range roles {
		if r != self {
			names = append(names, string(r))
		}
	}
	return strings.Join(names, ", ")
}
