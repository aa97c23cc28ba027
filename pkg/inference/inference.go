package inference

import (
	"context"
	"errors"
)

var (
	ErrNotReady       = errors.New("model is not ready")
	ErrUnknownBackend = errors.New("unknown inference backend")
)

// Detector locates objects in a full image.
type Detector interface {
	Detect(ctx context.Context, imagePath string) (*DetectionOutput, error)
	Ready() bool
	Close() error
}

// Classifier ranks classes for a cropped sub-image.
type Classifier interface {
	Classify(ctx context.Context, imagePath string) (*ClassificationOutput, error)
	Ready() bool
	Close() error
}

// DetectionOutput is the raw detector response, one frame per input image.
type DetectionOutput struct {
	Frames []DetectionFrame `json:"frames"`
}

// DetectionFrame mirrors what a segmentation model exposes for one image.
// A nil Boxes or Masks means the capability is missing, not merely empty.
type DetectionFrame struct {
	Boxes     *BoxTensor     `json:"boxes"`
	Masks     *MaskTensor    `json:"masks"`
	Names     map[int]string `json:"names"`
	OrigShape []int          `json:"orig_shape"`
}

// BoxTensor rows are [x1, y1, x2, y2, confidence, class].
type BoxTensor struct {
	Data [][]float64 `json:"data"`
}

type MaskTensor struct {
	Data [][][]float64 `json:"data"`
}

// ClassificationOutput is the raw classifier response.
type ClassificationOutput struct {
	Frames []ClassificationFrame `json:"frames"`
}

// ClassificationFrame carries one probability per entry of Names. A nil
// Probs means the model produced no probability vector.
type ClassificationFrame struct {
	Probs []float64 `json:"probs"`
	Names []string  `json:"names"`
}
