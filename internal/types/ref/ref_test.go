package ref

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	id := int64(7)

	r, err := Parse("", nil)
	require.NoError(t, err)
	assert.Nil(t, r)

	r, err = Parse("orders", &id)
	require.NoError(t, err)
	assert.Equal(t, Order(7), r)

	_, err = Parse("invoices", &id)
	assert.True(t, errors.Is(err, ErrUnknownKind))

	_, err = Parse("orders", nil)
	assert.Error(t, err)
}

func TestColumns(t *testing.T) {
	var empty *Ref
	k, id := empty.Columns()
	assert.Nil(t, k)
	assert.Nil(t, id)

	k, id = Payment(3).Columns()
	require.NotNil(t, k)
	assert.Equal(t, "payment_transactions", *k)
	assert.Equal(t, int64(3), *id)
	assert.True(t, Payment(3).Is(KindPayment))
	assert.False(t, empty.Is(KindOrder))
}
