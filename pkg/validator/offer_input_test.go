package validator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeText(t *testing.T) {
	text, err := NormalizeText("  Unlimited rides\non regional trains ")
	require.NoError(t, err)
	assert.Equal(t, "Unlimited rides\non regional trains", text)

	_, err = NormalizeText("   ")
	assert.ErrorIs(t, err, ErrEmptyText)

	_, err = NormalizeText(strings.Repeat("ü", maxTextLength+1))
	assert.ErrorIs(t, err, ErrTextTooLong)
}

func TestNormalizeName(t *testing.T) {
	name, err := NormalizeName("  Alice   Smith ")
	require.NoError(t, err)
	assert.Equal(t, "Alice Smith", name)

	_, err = NormalizeName("")
	assert.ErrorIs(t, err, ErrEmptyText)

	_, err = NormalizeName(strings.Repeat("a", maxFieldLength+1))
	assert.Error(t, err)
}

func TestParseOfferURL(t *testing.T) {
	link, err := ParseOfferURL(" https://example.com/bavaria ")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/bavaria", link)

	for _, input := range []string{"example.com", "ftp://example.com", "https://", "not a url"} {
		_, err := ParseOfferURL(input)
		assert.ErrorIs(t, err, ErrInvalidURL, input)
	}
}

func TestParseAge(t *testing.T) {
	age, err := ParseAge(" 30 ")
	require.NoError(t, err)
	assert.Equal(t, 30, age)

	for _, input := range []string{"0", "121", "thirty", "-5", "30.5"} {
		_, err := ParseAge(input)
		assert.ErrorIs(t, err, ErrInvalidAge, input)
	}
}

func TestNormalizePostCode(t *testing.T) {
	valid := map[string]string{
		"80331":      "80331",
		" sw1a  1aa": "SW1A 1AA",
		"1010-AB":    "1010-AB",
	}
	for input, expected := range valid {
		code, err := NormalizePostCode(input)
		require.NoError(t, err, input)
		assert.Equal(t, expected, code)
	}

	for _, input := range []string{"", "1", "80331!", strings.Repeat("9", 13)} {
		_, err := NormalizePostCode(input)
		assert.ErrorIs(t, err, ErrInvalidPostCode, input)
	}
}
