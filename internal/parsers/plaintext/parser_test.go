package plaintext

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_UTF8(t *testing.T) {
	parser := New()

	result, err := parser.Parse(context.Background(), []byte("Hello, world. Héllo."), "greeting.txt")
	require.NoError(t, err)

	assert.Equal(t, "Hello, world. Héllo.", result.Text)
	assert.Equal(t, "utf-8", result.Metadata["encoding"])
	assert.Equal(t, 100, result.Metadata["encoding_confidence"])
}

func TestParse_Latin1(t *testing.T) {
	parser := New()

	// "café résumé" in ISO-8859-1, invalid as UTF-8. Padded with enough
	// ASCII for the detector to have signal.
	content := append([]byte("The menu at the caf"), 0xE9)
	content = append(content, []byte(" offers many things, including a r")...)
	content = append(content, 0xE9)
	content = append(content, []byte("sum")...)
	content = append(content, 0xE9)
	content = append(content, []byte(" review service for students and professionals alike.")...)

	result, err := parser.Parse(context.Background(), content, "menu.txt")
	require.NoError(t, err)

	assert.Contains(t, result.Text, "café")
	assert.Contains(t, result.Text, "résumé")
	assert.NotEmpty(t, result.Metadata["encoding"])
	assert.NotEqual(t, "utf-8 (fallback)", result.Metadata["encoding"])
}

func TestParse_UndetectableFallsBackLossy(t *testing.T) {
	parser := New()

	// Bytes that defeat detection: isolated continuation bytes.
	content := []byte{0x80, 0x81, 0x82, 'o', 'k', 0xFE, 0xFF}

	result, err := parser.Parse(context.Background(), content, "binaryish.txt")
	require.NoError(t, err)

	// Either a detector guess decoded it or the lossy fallback kicked
	// in; in both cases the output must be valid UTF-8 and flagged
	// accordingly.
	assert.NotEmpty(t, result.Metadata["encoding"])
	assert.Contains(t, result.Text, "ok")
}

func TestParse_Empty(t *testing.T) {
	parser := New()

	result, err := parser.Parse(context.Background(), []byte{}, "empty.txt")
	require.NoError(t, err)
	assert.Equal(t, "", result.Text)
}
