package ledger_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/ledger-engine/internal/ledger"
)

func TestParseQuantity(t *testing.T) {
	tests := []struct {
		in      string
		want    ledger.Quantity
		wantErr bool
	}{
		{"5", ledger.Exact(5), false},
		{" 12 ", ledger.Exact(12), false},
		{"-3", ledger.Exact(-3), false},
		{"all", ledger.All(), false},
		{"ALL", ledger.All(), false},
		{"", ledger.Quantity{}, true},
		{"2.5", ledger.Quantity{}, true},
		{"lots", ledger.Quantity{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ledger.ParseQuantity(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ledger.ErrInvalidQuantity)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQuantity_Resolve(t *testing.T) {
	assert.Equal(t, int64(3), ledger.Exact(3).Resolve(10))
	assert.Equal(t, int64(10), ledger.All().Resolve(10))
	assert.Equal(t, int64(0), ledger.All().Resolve(0))
	assert.True(t, ledger.All().IsAll())
	assert.False(t, ledger.Exact(1).IsAll())
}

func TestQuantity_UnmarshalJSON(t *testing.T) {
	var body struct {
		Quantity ledger.Quantity `json:"quantity"`
	}

	require.NoError(t, json.Unmarshal([]byte(`{"quantity": 4}`), &body))
	assert.Equal(t, ledger.Exact(4), body.Quantity)

	require.NoError(t, json.Unmarshal([]byte(`{"quantity": "all"}`), &body))
	assert.Equal(t, ledger.All(), body.Quantity)

	require.NoError(t, json.Unmarshal([]byte(`{"quantity": "9"}`), &body))
	assert.Equal(t, ledger.Exact(9), body.Quantity)

	err := json.Unmarshal([]byte(`{"quantity": "some"}`), &body)
	assert.ErrorIs(t, err, ledger.ErrInvalidQuantity)

	assert.Error(t, json.Unmarshal([]byte(`{"quantity": 1.5}`), &body))
}

func TestQuantity_MarshalJSON(t *testing.T) {
	b, err := json.Marshal(ledger.All())
	require.NoError(t, err)
	assert.JSONEq(t, `"all"`, string(b))

	b, err = json.Marshal(ledger.Exact(7))
	require.NoError(t, err)
	assert.JSONEq(t, `7`, string(b))
	assert.Equal(t, "7", ledger.Exact(7).String())
}
