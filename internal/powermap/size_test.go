package powermap

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSizeOrdering(t *testing.T) {
	ordered := []Size{
		SizeUnknown,
		SizeSinglePhase16A,
		SizeThreePhase16A,
		SizeThreePhase32A,
		SizeThreePhase63A,
		SizeThreePhase125A,
		SizeThreePhase250A,
	}
	for i := 1; i < len(ordered); i++ {
		assert.Less(t, ordered[i-1], ordered[i], "%s < %s", ordered[i-1], ordered[i])
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in   string
		want Size
	}{
		{"unknown", SizeUnknown},
		{"1f", SizeSinglePhase16A},
		{"16", SizeThreePhase16A},
		{"63", SizeThreePhase63A},
		{"250", SizeThreePhase250A},
	}
	for _, tt := range tests {
		got, err := ParseSize(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
		assert.Equal(t, tt.in, got.String())
	}

	_, err := ParseSize("40")
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestParseSizeLabel(t *testing.T) {
	tests := []struct {
		in      string
		want    Size
		wantErr bool
	}{
		{"63A", SizeThreePhase63A, false},
		{"32 A cable", SizeThreePhase32A, false},
		{"CEE 125", SizeThreePhase125A, false},
		{"64A", SizeThreePhase63A, false},
		{"50A", SizeThreePhase63A, false},
		{"230V 230", SizeSinglePhase16A, false},
		{"Point 16", SizeUnknown, true},
		{"100 KVA", SizeUnknown, true},
		{"", SizeUnknown, true},
		{"no digits", SizeUnknown, true},
	}
	for _, tt := range tests {
		got, err := ParseSizeLabel(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestSizeJSON(t *testing.T) {
	b, err := json.Marshal(SizeThreePhase32A)
	require.NoError(t, err)
	assert.JSONEq(t, `"32"`, string(b))

	var s Size
	require.NoError(t, json.Unmarshal([]byte(`125`), &s))
	assert.Equal(t, SizeThreePhase125A, s)
	require.NoError(t, json.Unmarshal([]byte(`"1f"`), &s))
	assert.Equal(t, SizeSinglePhase16A, s)
}
