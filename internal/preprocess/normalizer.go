// Package preprocess rectifies photographed or scanned score pages so the
// downstream recognition engine can read them reliably: grayscale, denoise,
// deskew, perspective correction, contrast enhancement, binarization, and
// resolution normalization, in that fixed order.
package preprocess

import (
	"fmt"
	"image"

	"go.uber.org/zap"

	"scorescan/internal/config"
)

// Normalizer runs the geometry normalization pipeline. It holds no mutable
// state between calls; given identical input and options the output is
// deterministic.
type Normalizer struct {
	opts   config.PreprocessConfig
	logger *zap.Logger
}

// NewNormalizer builds a normalizer from immutable preprocessing options.
func NewNormalizer(opts config.PreprocessConfig, logger *zap.Logger) *Normalizer {
	return &Normalizer{opts: opts, logger: logger}
}

// Normalize runs every enabled step over a decoded image.
func (n *Normalizer) Normalize(src image.Image) (*image.Gray, error) {
	if src == nil {
		return nil, fmt.Errorf("nil input image")
	}
	bounds := src.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, fmt.Errorf("empty input image")
	}

	gray := toGray(src)

	if n.opts.Denoise {
		n.logger.Debug("applying denoising")
		gray = denoise(gray)
	}

	if n.opts.Deskew {
		var angle float64
		gray, angle = deskew(gray)
		if angle != 0 {
			n.logger.Info("corrected skew", zap.Float64("angle_degrees", angle))
		}
	}

	if n.opts.Perspective {
		before := gray
		gray = correctPerspective(gray)
		if gray != before {
			n.logger.Info("perspective correction applied")
		}
	}

	gray = enhanceContrast(gray)

	if n.opts.Binarize {
		n.logger.Debug("applying adaptive binarization")
		gray = binarize(gray)
	}

	gray = ensureResolution(gray, n.opts.TargetDPI)
	return gray, nil
}

// NormalizeFile reads inputPath, normalizes it, and writes the result to
// outputPath. On any error no output file is left behind.
func (n *Normalizer) NormalizeFile(inputPath, outputPath string) error {
	src, err := loadImage(inputPath)
	if err != nil {
		return fmt.Errorf("load image: %w", err)
	}

	normalized, err := n.Normalize(src)
	if err != nil {
		return err
	}

	if err := saveGray(outputPath, normalized); err != nil {
		return fmt.Errorf("write normalized image: %w", err)
	}

	n.logger.Info("preprocessing complete",
		zap.String("input", inputPath),
		zap.String("output", outputPath),
		zap.Int("width", normalized.Bounds().Dx()),
		zap.Int("height", normalized.Bounds().Dy()))
	return nil
}
