package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Quarterly Report":      "quarterly-report",
		"  Résumé  final  ":     "resume-final",
		"a -- b":                "a-b",
		"hello_world":           "hello_world",
		"Straße":                "strae",
		"!!!":                   "",
		"__init__":              "init",
		"Ünïcödé Fïlé 2024 (1)": "unicode-file-2024-1",
	}
	for in, want := range cases {
		assert.Equal(t, want, Slugify(in), in)
	}
}

func TestGenerateSecureToken(t *testing.T) {
	a, err := GenerateSecureToken(16)
	assert.NoError(t, err)
	b, err := GenerateSecureToken(16)
	assert.NoError(t, err)
	assert.Len(t, a, 22)
	assert.NotEqual(t, a, b)
}
