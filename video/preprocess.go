package video

import (
	"image"

	"github.com/disintegration/gift"
	"gocv.io/x/gocv"
)

// Preprocessor converts camera images into the grayscale Mats the detector works on.
type Preprocessor struct {
	filter *gift.GIFT
}

// NewPreprocessor returns a grayscale converter; a non-zero contrast (percent, -100..100) is
// applied after the conversion.
func NewPreprocessor(contrast float32) *Preprocessor {
	filters := []gift.Filter{gift.Grayscale()}
	if contrast != 0 {
		filters = append(filters, gift.Contrast(contrast))
	}
	return &Preprocessor{filter: gift.New(filters...)}
}

// Gray runs the filter chain.
func (p *Preprocessor) Gray(img image.Image) *image.Gray {
	dst := image.NewGray(p.filter.Bounds(img.Bounds()))
	p.filter.Draw(dst, img)
	return dst
}

// Mat runs the filter chain and wraps the result in a Mat owned by the caller.
func (p *Preprocessor) Mat(img image.Image) (gocv.Mat, error) {
	return gocv.ImageGrayToMatGray(p.Gray(img))
}
