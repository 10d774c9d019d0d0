package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		input string
		want  string
		err   bool
	}{
		{input: "12.5", want: "25/2"},
		{input: "0", want: "0"},
		{input: "100", want: "100"},
		{input: "0.0000001", want: "1/10000000"},
		{input: "", err: true},
		{input: "-1", err: true},
		{input: "1/2", err: true},
		{input: "1e3", err: true},
		{input: ".5", err: true},
		{input: "5.", err: true},
		{input: "1,000", err: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseAmount(tt.input)
			if tt.err {
				require.ErrorIs(t, err, ErrConfiguration)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.RatString())
		})
	}
}

func TestTrustLineInsufficient(t *testing.T) {
	tests := []struct {
		name     string
		balance  string
		limit    string
		incoming string
		want     bool
	}{
		{name: "room left", balance: "10", limit: "100", incoming: "50", want: false},
		{name: "exactly at limit", balance: "50", limit: "100", incoming: "50", want: false},
		{name: "one stroop over", balance: "50", limit: "100", incoming: "50.0000001", want: true},
		{name: "zero limit", balance: "0", limit: "0", incoming: "1", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := TrustLine{Balance: tt.balance, Limit: tt.limit}.Insufficient(tt.incoming)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := TrustLine{Balance: "x", Limit: "1"}.Insufficient("1")
	require.ErrorIs(t, err, ErrConfiguration)
}

func TestConfirmationStatus(t *testing.T) {
	for _, s := range []ConfirmationStatus{StatusPending, StatusNotFound, StatusSuccess, StatusFailed} {
		parsed, err := ParseConfirmationStatus(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}
	assert.True(t, StatusSuccess.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusNotFound.Terminal())

	_, err := ParseConfirmationStatus("MAYBE")
	require.ErrorIs(t, err, ErrEncoding)
}

func TestAddresses(t *testing.T) {
	account := "G" + strings.Repeat("A", 55)
	contract := "C" + strings.Repeat("B", 55)

	assert.True(t, IsAccountAddress(account))
	assert.False(t, IsContractAddress(account))
	assert.True(t, IsContractAddress(contract))
	assert.False(t, IsAccountAddress(contract))

	assert.False(t, IsStellarAddress(strings.ToLower(account)))
	assert.False(t, IsStellarAddress(account[:55]))
	assert.False(t, IsStellarAddress("M"+strings.Repeat("A", 55)))
	assert.False(t, IsStellarAddress("G"+strings.Repeat("1", 55)))
}

func TestAsset(t *testing.T) {
	assert.True(t, Asset{Symbol: "XLM"}.Native())
	assert.True(t, Asset{Symbol: "native"}.Native())
	assert.False(t, Asset{Symbol: "XLM", Issuer: "GISSUER"}.Native())
	assert.Equal(t, "USDC:GISSUER", Asset{Symbol: "USDC", Issuer: "GISSUER"}.ID())
	assert.Equal(t, "XLM", Asset{Symbol: "XLM"}.ID())
}

func TestOperationKind(t *testing.T) {
	for k := OperationKind(0); k < NumOperationKinds; k++ {
		assert.True(t, k.Valid())
		assert.NotContains(t, k.String(), "OperationKind(")
	}
	assert.False(t, NumOperationKinds.Valid())
	assert.False(t, OperationKind(-1).Valid())
	assert.Equal(t, "OperationKind(99)", OperationKind(99).String())
}
