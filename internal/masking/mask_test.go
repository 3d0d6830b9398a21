package masking

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaskValueModes(t *testing.T) {
	t.Run("full replaces with fixed-length asterisks", func(t *testing.T) {
		assert.Equal(t, "********", MaskValue("sensitive-value", Rule{Type: TypeFull}))
	})

	t.Run("full preserves length when flagged", func(t *testing.T) {
		masked := MaskValue("secret", Rule{Type: TypeFull, PreserveLength: true})
		assert.Equal(t, "******", masked)
	})

	t.Run("partial keeps first and last two", func(t *testing.T) {
		assert.Equal(t, "Jo*****th", MaskValue("Jonasmith", Rule{Type: TypePartial}))
	})

	t.Run("partial collapses short values to all asterisks", func(t *testing.T) {
		assert.Equal(t, "****", MaskValue("abcd", Rule{Type: TypePartial}))
		assert.Equal(t, "*", MaskValue("a", Rule{Type: TypePartial}))
	})

	t.Run("partial honors explicit literal pattern", func(t *testing.T) {
		assert.Equal(t, "###", MaskValue("whatever", Rule{Type: TypePartial, Pattern: "###"}))
	})

	t.Run("hash embeds the first four source characters", func(t *testing.T) {
		assert.Equal(t, "[HASH:abcd]", MaskValue("abcdefgh", Rule{Type: TypeHash}))
	})

	t.Run("redact is a fixed literal", func(t *testing.T) {
		assert.Equal(t, "[REDACTED]", MaskValue("anything", Rule{Type: TypeRedact}))
	})

	t.Run("tokenize is not stable across calls", func(t *testing.T) {
		first := MaskValue("value", Rule{Type: TypeTokenize})
		second := MaskValue("value", Rule{Type: TypeTokenize})
		assert.True(t, strings.HasPrefix(first, "[TOKEN:"))
		assert.NotEqual(t, first, second)
	})

	t.Run("empty input passes through", func(t *testing.T) {
		assert.Equal(t, "", MaskValue("", Rule{Type: TypeFull}))
	})
}

func TestMaskEmail(t *testing.T) {
	t.Run("preserves domain and local-part edges", func(t *testing.T) {
		assert.Equal(t, "j*******h@example.com", MaskEmail("johnsmith@example.com"))
	})

	t.Run("short local part is left unchanged", func(t *testing.T) {
		assert.Equal(t, "ab@x.com", MaskEmail("ab@x.com"))
	})

	t.Run("falls back to partial masking without an at sign", func(t *testing.T) {
		assert.Equal(t, "no********il", MaskEmail("not-an-email"))
	})
}

func TestMaskPhone(t *testing.T) {
	t.Run("keeps exactly the last four digits", func(t *testing.T) {
		assert.Equal(t, "+*-***-***-4567", MaskPhone("+1-555-123-4567"))
	})

	t.Run("preserves formatting characters", func(t *testing.T) {
		masked := MaskPhone("(555) 123-4567")
		assert.Equal(t, "(***) ***-4567", masked)
		assert.Equal(t, len("(555) 123-4567"), len(masked))
	})
}

func TestMaskPAN(t *testing.T) {
	t.Run("keeps first two and last two of the ten-character format", func(t *testing.T) {
		assert.Equal(t, "AB******9F", MaskPAN("ABCDE1239F"))
	})

	t.Run("falls back to partial for other lengths", func(t *testing.T) {
		assert.Equal(t, "AB***23", MaskPAN("ABCDE23"))
	})
}

func TestMaskAadhaar(t *testing.T) {
	t.Run("shows only the last four digits in card format", func(t *testing.T) {
		assert.Equal(t, "XXXX-XXXX-9012", MaskAadhaar("1234 5678 9012"))
	})

	t.Run("falls back to partial when not twelve digits", func(t *testing.T) {
		assert.Equal(t, "12***78", MaskAadhaar("1234578"))
	})
}

func TestMaskCard(t *testing.T) {
	cases := []string{
		"4111111111111111",
		"4111-1111-1111-1111",
		"4111 1111 1111 1111",
		"411111111111111111119999", // overlong
	}
	for _, input := range cases {
		masked := MaskCard(input)
		require.True(t, strings.HasPrefix(masked, "**** **** **** "), "input %q", input)
		digits := digitsOf(input)
		assert.Equal(t, digits[len(digits)-4:], masked[len(masked)-4:], "input %q", input)
	}

	t.Run("too few digits never reveals anything", func(t *testing.T) {
		assert.Equal(t, "***", MaskCard("1-2"))
	})
}
