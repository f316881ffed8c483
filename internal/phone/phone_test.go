package phone

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_AcceptedShapes(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"national digits", "5321234567", "5321234567"},
		{"trunk zero with spaces", "0532 123 45 67", "5321234567"},
		{"country code", "905321234567", "5321234567"},
		{"plus country code", "+90 532 123 45 67", "5321234567"},
		{"international prefix", "0090 532 123 4567", "5321234567"},
		{"punctuation", "(0532) 123-45.67", "5321234567"},
		{"slash and tabs", "0532/123\t45 67", "5321234567"},
		{"landline", "0212 555 11 22", "2125551122"},
		{"surrounding whitespace", "  5321234567 \n", "5321234567"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Normalize(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNormalize_RejectsWithoutGuessing(t *testing.T) {
	cases := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"only separators", " - ( ) "},
		{"nine digits", "532123456"},
		{"eleven digits without trunk zero", "53212345678"},
		{"twelve digits with wrong country code", "445321234567"},
		{"thirteen digits", "0905321234567"},
		{"fourteen digits without 0090", "1234532123456"},
		{"ten digits starting with zero", "0532123456"},
		{"national part starting with zero", "+90 0532 123 45"},
		{"letters", "0532 ABC 45 67"},
		{"extension marker", "5321234567x12"},
		{"double plus", "++905321234567"},
		{"plus in the middle", "90+5321234567"},
		{"unicode digits", "٥٣٢١٢٣٤٥٦٧"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Normalize(tc.in)
			if !errors.Is(err, ErrInvalidPhoneNumber) {
				t.Fatalf("Normalize(%q) err = %v, want ErrInvalidPhoneNumber", tc.in, err)
			}
			assert.Empty(t, got)
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"5321234567",
		"05321234567",
		"905321234567",
		"00905321234567",
		"+90 (532) 123-45-67",
		"0 532 123 45 67",
	}
	for _, in := range inputs {
		once, err := Normalize(in)
		require.NoError(t, err, in)
		twice, err := Normalize(once)
		require.NoError(t, err, in)
		assert.Equal(t, once, twice, in)
		assert.Len(t, once, NationalLength)
	}
}
