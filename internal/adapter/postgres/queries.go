package postgres

// queryColumns lists a table's columns in ordinal order. $1 is the schema,
// $2 the table.
const queryColumns = `
	SELECT c.column_name
	FROM information_schema.columns c
	WHERE c.table_schema = $1 AND c.table_name = $2
	ORDER BY c.ordinal_position`

// querySample has two %s placeholders: the text-cast select list and the
// qualified table. $1 is the row limit.
const querySample = `SELECT %s FROM %s LIMIT $1`

// queryCounts has two %s placeholders: the count(DISTINCT ...) list and the
// qualified table.
const queryCounts = `SELECT count(*), %s FROM %s`

// queryDistinct has three %s placeholders: the column, the qualified table,
// and the column again. $1 is the row limit.
const queryDistinct = `
	SELECT DISTINCT %s::text AS v
	FROM %s
	WHERE %s IS NOT NULL
	ORDER BY v
	LIMIT $1`

// queryDateRange has three %s placeholders: the column twice and the
// qualified table.
const queryDateRange = `SELECT min(CAST(%s AS date))::text, max(CAST(%s AS date))::text FROM %s`

// queryDistinctAll has three %s placeholders like queryDistinct, unbounded.
const queryDistinctAll = `SELECT DISTINCT %s::text FROM %s WHERE %s IS NOT NULL`
