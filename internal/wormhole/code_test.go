package wormhole

import (
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCode(t *testing.T) {
	tests := []struct {
		input   string
		want    Code
		wantErr bool
	}{
		{input: "7-guitarist-revenge", want: "7-guitarist-revenge"},
		{input: "  12-Apple-BANJO \n", want: "12-apple-banjo"},
		{input: "3 apple banjo", want: "3-apple-banjo"},
		{input: "1-solo", want: "1-solo"},
		{input: "", wantErr: true},
		{input: "7", wantErr: true},
		{input: "7-", wantErr: true},
		{input: "apple-banjo", wantErr: true},
		{input: "7-apple--banjo", wantErr: true},
		{input: "7-apple-b4njo", wantErr: true},
		{input: "x7-apple", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseCode(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidCode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCodeParts(t *testing.T) {
	code := Code("42-hamlet-tunnel-zulu")
	assert.Equal(t, "42", code.Nameplate())
	assert.Equal(t, []string{"hamlet", "tunnel", "zulu"}, code.Words())

	assert.Nil(t, Code("42").Words())
}

func TestGenerateCode(t *testing.T) {
	for _, n := range []int{1, 2, 5} {
		code, err := GenerateCode("9", n)
		require.NoError(t, err)

		assert.Equal(t, "9", code.Nameplate())
		require.Len(t, code.Words(), n)
		for _, w := range code.Words() {
			assert.True(t, slices.Contains(words[:], w), "unknown word %q", w)
		}

		parsed, err := ParseCode(strings.ToUpper(code.String()))
		require.NoError(t, err)
		assert.Equal(t, code, parsed)
	}

	_, err := GenerateCode("9", 0)
	assert.ErrorIs(t, err, ErrInvalidCode)
	_, err = GenerateCode("", 2)
	assert.ErrorIs(t, err, ErrInvalidCode)
}

func TestGenerateNameplate(t *testing.T) {
	for range 50 {
		nameplate, err := GenerateNameplate(10)
		require.NoError(t, err)
		assert.Regexp(t, `^([1-9]|10)$`, nameplate)
	}
}
