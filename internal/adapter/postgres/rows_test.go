package postgres

import (
	"math/big"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeValue(t *testing.T) {
	t.Parallel()

	got := normalizeValue(pgtype.Numeric{Int: big.NewInt(13075), Exp: -2, Valid: true})
	assert.True(t, decimal.RequireFromString("130.75").Equal(got.(decimal.Decimal)))

	assert.Nil(t, normalizeValue(pgtype.Numeric{}))
	assert.Equal(t, "NaN", normalizeValue(pgtype.Numeric{NaN: true, Valid: true}))
	assert.Equal(t, "North", normalizeValue("North"))
	assert.Equal(t, int64(3), normalizeValue(int64(3)))
}
