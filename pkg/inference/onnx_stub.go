//go:build !gocv
// +build !gocv

package inference

import (
	"context"
	"errors"
)

var errNoGoCV = errors.New("gocv build tag is not enabled")

type ONNXDetector struct{}

// NewONNXDetector fails when built without the gocv tag.
func NewONNXDetector(modelPath string, labels []string) (*ONNXDetector, error) {
	_ = modelPath
	_ = labels
	return nil, errNoGoCV
}

func (d *ONNXDetector) Ready() bool  { return false }
func (d *ONNXDetector) Close() error { return nil }

func (d *ONNXDetector) Detect(ctx context.Context, imagePath string) (*DetectionOutput, error) {
	_ = ctx
	_ = imagePath
	return nil, errNoGoCV
}

type ONNXClassifier struct{}

// NewONNXClassifier fails when built without the gocv tag.
func NewONNXClassifier(modelPath string, labels []string) (*ONNXClassifier, error) {
	_ = modelPath
	_ = labels
	return nil, errNoGoCV
}

func (c *ONNXClassifier) Ready() bool  { return false }
func (c *ONNXClassifier) Close() error { return nil }

func (c *ONNXClassifier) Classify(ctx context.Context, imagePath string) (*ClassificationOutput, error) {
	_ = ctx
	_ = imagePath
	return nil, errNoGoCV
}
