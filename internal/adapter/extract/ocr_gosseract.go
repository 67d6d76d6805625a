//go:build tesseract

package extract

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"
)

// GosseractOCR runs tesseract in-process through its C API.
type GosseractOCR struct {
	Language string
}

// NewOCR returns the OCR engine compiled into this build. With the
// tesseract build tag that is the linked library.
func NewOCR(language string) OCR {
	if language == "" {
		language = "eng"
	}
	return &GosseractOCR{Language: language}
}

// OCRAvailable is always true when libtesseract is linked in.
func OCRAvailable() bool { return true }

func (g *GosseractOCR) Recognize(ctx context.Context, imagePath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(g.Language); err != nil {
		return "", fmt.Errorf("%w: %v", ErrOCRUnavailable, err)
	}
	if err := client.SetImage(imagePath); err != nil {
		return "", err
	}
	return client.Text()
}
