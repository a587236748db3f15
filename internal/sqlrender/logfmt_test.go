package sqlrender

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeForLogCollapsesDoubleCast(t *testing.T) {
	got := NormalizeForLog(`SELECT $1::uuid::uuid FROM orders`)
	assert.Equal(t, `SELECT $1::uuid FROM orders`, got)
}

func TestNormalizeForLogNoCast(t *testing.T) {
	got := NormalizeForLog(`SELECT * FROM orders WHERE id = $1`)
	assert.Equal(t, `SELECT * FROM orders WHERE id = $1`, got)
}

func TestNormalizeForLogTruncates(t *testing.T) {
	long := strings.Repeat("a", maxLogLength+500)
	got := NormalizeForLog(long)
	assert.Len(t, got, maxLogLength)
}

func TestNormalizeForLogRepeatedCasts(t *testing.T) {
	got := NormalizeForLog(`$1::bigint::bigint::bigint`)
	assert.Equal(t, `$1::bigint`, got)
}
