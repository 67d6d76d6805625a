//go:build !tesseract

package extract

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// TesseractCLI shells out to the tesseract binary.
type TesseractCLI struct {
	Binary   string
	Language string
}

// NewOCR returns the OCR engine compiled into this build. Without the
// tesseract build tag that is the command-line tool.
func NewOCR(language string) OCR {
	if language == "" {
		language = "eng"
	}
	return &TesseractCLI{Binary: "tesseract", Language: language}
}

// OCRAvailable reports whether the tesseract binary is on PATH.
func OCRAvailable() bool {
	_, err := exec.LookPath("tesseract")
	return err == nil
}

func (t *TesseractCLI) Recognize(ctx context.Context, imagePath string) (string, error) {
	bin, err := exec.LookPath(t.Binary)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrOCRUnavailable, err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, imagePath, "stdout", "-l", t.Language)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return "", fmt.Errorf("tesseract: %w", err)
		}
		return "", fmt.Errorf("tesseract: %w: %s", err, msg)
	}
	return stdout.String(), nil
}
