package money

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUSD(t *testing.T) {
	cases := []struct {
		in   string
		want Amount
	}{
		{"10", 10 * Dollar},
		{"10.00", 10 * Dollar},
		{"$0.0001", 100_000},
		{"9.999", 9*Dollar + 999*Dollar/1000},
		{"-1.5", -(Dollar + Dollar/2)},
		{".5", Dollar / 2},
		{"0.000000001", Nano},
	}
	for _, tc := range cases {
		got, err := ParseUSD(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestParseUSDRejects(t *testing.T) {
	for _, in := range []string{"", "abc", "1.2.3", "0.0000000001", "1e5", "--1", "."} {
		_, err := ParseUSD(in)
		assert.ErrorIs(t, err, ErrInvalidAmount, in)
	}
}

func TestString(t *testing.T) {
	assert.Equal(t, "10.00", (10 * Dollar).String())
	assert.Equal(t, "0.0001", MustParseUSD("0.0001").String())
	assert.Equal(t, "9.9995", MustParseUSD("9.9995").String())
	assert.Equal(t, "-2.50", MustParseUSD("-2.5").String())
	assert.Equal(t, "0.00", Amount(0).String())
}

func TestMulDivCeil(t *testing.T) {
	rate := MustParseUSD("0.0001")
	assert.Equal(t, Amount(100), rate.MulDivCeil(1, 1000))
	assert.Equal(t, Amount(1), Amount(1).MulDivCeil(1, 3))
	assert.Equal(t, Amount(0), Amount(0).MulDivCeil(7, 3))
}

func TestJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		Balance Amount `json:"balance_usd"`
	}{MustParseUSD("0.0005")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"balance_usd":"0.0005"}`, string(b))

	var v struct {
		A Amount `json:"a"`
		B Amount `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"12.50","b":3.25}`), &v))
	assert.Equal(t, MustParseUSD("12.5"), v.A)
	assert.Equal(t, MustParseUSD("3.25"), v.B)
}

func TestNoDriftAcrossManySettles(t *testing.T) {
	var used Amount
	charge := MustParseUSD("0.0000001")
	for i := 0; i < 100_000; i++ {
		used += charge
	}
	assert.Equal(t, MustParseUSD("0.01"), used)
}
