package postgres

import "github.com/jackc/pgx/v5"

// quoteIdent quotes a SQL identifier to prevent injection.
func quoteIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}
