package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "integer", in: "10", want: "10.0000000"},
		{name: "seven digits", in: "0.0000001", want: "0.0000001"},
		{name: "half to even rounds down", in: "1.00000005", want: "1.0000000"},
		{name: "half to even rounds up", in: "1.00000015", want: "1.0000002"},
		{name: "not a number", in: "ten", wantErr: true},
		{name: "empty", in: "", wantErr: true},
		{name: "largest fitting", in: "99999999999999999999.9999999", want: "99999999999999999999.9999999"},
		{name: "exponent overflows column", in: "1e25", wantErr: true},
		{name: "twenty one integer digits", in: "100000000000000000000", wantErr: true},
		{name: "rounds up past limit", in: "99999999999999999999.99999999", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseAmount(tc.in)
			if tc.wantErr {
				require.ErrorIs(t, err, ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, FormatAmount(got))
		})
	}
}

func TestValidatePositiveAmount(t *testing.T) {
	assert.NoError(t, ValidatePositiveAmount(decimal.RequireFromString("0.0000001")))
	assert.ErrorIs(t, ValidatePositiveAmount(decimal.Zero), ErrValidation)
	assert.ErrorIs(t, ValidatePositiveAmount(decimal.RequireFromString("-1")), ErrValidation)
	assert.ErrorIs(t, ValidatePositiveAmount(decimal.RequireFromString("0.00000001")), ErrValidation)
	assert.ErrorIs(t, ValidatePositiveAmount(decimal.New(1, 25)), ErrValidation)
}

func TestDefaultMemoID(t *testing.T) {
	assert.Equal(t, "reddit/someuser", DefaultMemoID("reddit", "SomeUser"))
	assert.Equal(t, "someuser", NormalizeUserID("  SomeUser "))
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{name: "nil", err: nil, want: KindNone},
		{name: "wrapped insufficient", err: fmt.Errorf("Transfer: %w", ErrInsufficientBalance), want: KindInsufficientBalance},
		{name: "duplicate", err: ErrDuplicateOperation, want: KindDuplicateOperation},
		{name: "self transfer", err: ErrSelfTransfer, want: KindValidation},
		{name: "settlement with cause", err: fmt.Errorf("Withdraw: %w: %w", ErrSettlementFailed, errors.New("bad address")), want: KindSettlementFailed},
		{name: "reconciliation wins", err: fmt.Errorf("%w: %w", ErrReconciliationRequired, ErrSettlementFailed), want: KindReconciliationRequired},
		{name: "not found", err: ErrNotFound, want: KindNotFound},
		{name: "other", err: errors.New("boom"), want: KindInternal},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, KindOf(tc.err))
		})
	}
}
