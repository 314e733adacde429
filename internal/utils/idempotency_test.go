package utils

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdempotencyKey(t *testing.T) {
	a := IdempotencyKey("8f14e45f-ceea-467f-a8f8-4cbb1d5b1c3a")
	b := IdempotencyKey("8f14e45f-ceea-467f-a8f8-4cbb1d5b1c3a")
	c := IdempotencyKey("c9f0f895-fb98-4b91-9f2b-8a5b0a6bb0f1")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 32)
}

func TestContractID(t *testing.T) {
	key := IdempotencyKey("R1")
	id := ContractID(key)
	assert.Equal(t, id, ContractID(key))

	parsed, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(5), parsed.Version())
}
