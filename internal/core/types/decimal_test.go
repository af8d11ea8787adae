package types_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"fieldstock/internal/core/types"
)

func TestQuantityString(t *testing.T) {
	require.Equal(t, "5.0000", types.NewQuantityFromUnits(5).String())
	require.Equal(t, "0.2500", types.NewQuantityFromInt64Scaled(2500).String())
	require.Equal(t, "-1.5000", types.NewQuantityFromInt64Scaled(-15000).String())
	require.Equal(t, "0.0000", types.Quantity(0).String())
}

func TestQuantityJSONRoundTrip(t *testing.T) {
	q := types.NewQuantityFromInt64Scaled(12_3456) // 12.3456

	data, err := json.Marshal(q)
	require.NoError(t, err)
	require.Equal(t, "12.3456", string(data))

	var parsed types.Quantity
	require.NoError(t, json.Unmarshal(data, &parsed))
	require.Equal(t, q, parsed)
}

func TestQuantityUnmarshalAcceptsString(t *testing.T) {
	var q types.Quantity
	require.NoError(t, json.Unmarshal([]byte(`"3.5"`), &q))
	require.Equal(t, types.NewQuantityFromInt64Scaled(3_5000), q)
}

func TestQuantityUnmarshalNegative(t *testing.T) {
	var q types.Quantity
	require.NoError(t, json.Unmarshal([]byte(`-0.75`), &q))
	require.Equal(t, types.NewQuantityFromInt64Scaled(-7500), q)
}

func TestQuantityUnmarshalNullIsZero(t *testing.T) {
	q := types.NewQuantityFromUnits(9)
	require.NoError(t, q.UnmarshalJSON([]byte("null")))
	require.True(t, q.IsZero())
}

func TestQuantityUnmarshalTruncatesExtraDigits(t *testing.T) {
	var q types.Quantity
	require.NoError(t, json.Unmarshal([]byte(`1.23456789`), &q))
	require.Equal(t, types.NewQuantityFromInt64Scaled(1_2345), q)
}

func TestQuantityWholeUnits(t *testing.T) {
	require.True(t, types.NewQuantityFromUnits(3).IsWholeUnits())
	require.False(t, types.NewQuantityFromInt64Scaled(3_0001).IsWholeUnits())
	require.Equal(t, int64(3), types.NewQuantityFromInt64Scaled(3_9999).Units())
}

func TestQuantityMulMoney(t *testing.T) {
	qty := types.NewQuantityFromInt64Scaled(2_5000) // 2.5
	cost := types.MustMoney("10.40")

	total := qty.Mul(cost)
	require.True(t, total.Equal(types.MustMoney("26.00")), "got %s", total)
}
