//go:build !tesseract

package extract

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTesseractCLIOnPath(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	assert.False(t, OCRAvailable())

	_, err := NewOCR("").Recognize(context.Background(), "scan.png")
	assert.ErrorIs(t, err, ErrOCRUnavailable)

	bin := t.TempDir()
	script := "#!/bin/sh\necho \"total $1\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(bin, "tesseract"), []byte(script), 0755))
	t.Setenv("PATH", bin)
	assert.True(t, OCRAvailable())

	text, err := NewOCR("deu").Recognize(context.Background(), "scan.png")
	require.NoError(t, err)
	assert.Equal(t, "total scan.png\n", text)
}
