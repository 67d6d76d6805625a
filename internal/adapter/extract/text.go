package extract

import (
	"bytes"
	"context"
	"errors"
	"os"
	"unicode/utf8"
)

// TextExtensions are read verbatim as UTF-8.
var TextExtensions = []string{
	".txt", ".md", ".markdown", ".rst", ".csv", ".log",
	".py", ".go", ".json", ".yaml", ".yml",
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

type TextExtractor struct{}

func (e *TextExtractor) Format() string { return "text" }

func (e *TextExtractor) ExtractText(_ context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return "", errors.New("content is not valid UTF-8")
	}
	return string(data), nil
}
