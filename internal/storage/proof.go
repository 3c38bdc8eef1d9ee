package storage

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/disintegration/imaging"
)

// ErrEmptyProof is returned when no screenshot data was supplied
var ErrEmptyProof = errors.New("screenshot is empty")

// Proof is a decoded, normalized payment screenshot ready to be stored
type Proof struct {
	Data        []byte
	Ext         string // "jpg" or "png"
	ContentType string
	Width       int
	Height      int
}

// ProofProcessor turns a base64 screenshot into a bounded image
type ProofProcessor struct {
	maxDimension int
}

// NewProofProcessor creates a processor. maxDimension <= 0 disables resizing.
func NewProofProcessor(maxDimension int) *ProofProcessor {
	return &ProofProcessor{maxDimension: maxDimension}
}

// Decode accepts "data:image/<fmt>;base64,<data>" or bare base64. The image is
// auto-oriented from EXIF and shrunk to fit maxDimension on its longest side.
func (p *ProofProcessor) Decode(screenshot string) (*Proof, error) {
	screenshot = strings.TrimSpace(screenshot)
	if screenshot == "" {
		return nil, ErrEmptyProof
	}

	format := ""
	encoded := screenshot
	if strings.HasPrefix(screenshot, "data:") {
		header, data, ok := strings.Cut(screenshot, ";base64,")
		if !ok {
			return nil, fmt.Errorf("screenshot is not a base64 data URL")
		}
		format = strings.ToLower(strings.TrimPrefix(header, "data:image/"))
		encoded = data
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode screenshot: %w", err)
	}

	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("screenshot is not a supported image: %w", err)
	}

	bounds := img.Bounds()
	if p.maxDimension > 0 && (bounds.Dx() > p.maxDimension || bounds.Dy() > p.maxDimension) {
		img = imaging.Fit(img, p.maxDimension, p.maxDimension, imaging.Lanczos)
	}

	proof := &Proof{Ext: "jpg", ContentType: "image/jpeg"}
	outFormat := imaging.JPEG
	if format == "png" {
		proof.Ext, proof.ContentType, outFormat = "png", "image/png", imaging.PNG
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, outFormat, imaging.JPEGQuality(85)); err != nil {
		return nil, fmt.Errorf("failed to encode screenshot: %w", err)
	}

	proof.Data = buf.Bytes()
	proof.Width = img.Bounds().Dx()
	proof.Height = img.Bounds().Dy()
	return proof, nil
}
