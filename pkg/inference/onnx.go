//go:build gocv
// +build gocv

package inference

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"
)

const (
	detectInputSize   = 640
	classifyInputSize = 224
	scoreThreshold    = 0.25
	nmsThreshold      = 0.45
)

// onnxNet wraps an OpenCV DNN network. cv::dnn::Net keeps per-forward
// buffers, so forwards on the same net are serialised.
type onnxNet struct {
	mu     sync.Mutex
	net    gocv.Net
	loaded bool
}

func loadONNX(modelPath string) (*onnxNet, error) {
	net := gocv.ReadNetFromONNX(modelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load ONNX model %s", modelPath)
	}
	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		net.Close()
		return nil, err
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		net.Close()
		return nil, err
	}
	return &onnxNet{net: net, loaded: true}, nil
}

func (n *onnxNet) Ready() bool {
	return n != nil && n.loaded
}

func (n *onnxNet) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.loaded {
		return nil
	}
	n.loaded = false
	return n.net.Close()
}

// forward runs img through the network and returns the flattened output
// together with its shape.
func (n *onnxNet) forward(img gocv.Mat, size int) ([]float32, []int, error) {
	blob := gocv.BlobFromImage(img, 1.0/255.0, image.Pt(size, size), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.loaded {
		return nil, nil, ErrNotReady
	}

	n.net.SetInput(blob, "")
	out := n.net.Forward("")
	defer out.Close()

	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, nil, err
	}
	values := make([]float32, len(data))
	copy(values, data)
	return values, out.Size(), nil
}

func readImage(imagePath string) (gocv.Mat, error) {
	img := gocv.IMRead(imagePath, gocv.IMReadColor)
	if img.Empty() {
		img.Close()
		return gocv.NewMat(), errors.New("failed to decode image")
	}
	return img, nil
}

// ONNXDetector runs a YOLO detection export ([1, 4+classes, anchors]).
// Segmentation heads are not decoded, so frames carry no masks.
type ONNXDetector struct {
	net   *onnxNet
	names map[int]string
}

func NewONNXDetector(modelPath string, labels []string) (*ONNXDetector, error) {
	net, err := loadONNX(modelPath)
	if err != nil {
		return nil, err
	}
	return &ONNXDetector{net: net, names: labelMap(labels)}, nil
}

func (d *ONNXDetector) Ready() bool  { return d.net.Ready() }
func (d *ONNXDetector) Close() error { return d.net.Close() }

func (d *ONNXDetector) Detect(ctx context.Context, imagePath string) (*DetectionOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, err := readImage(imagePath)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	data, shape, err := d.net.forward(img, detectInputSize)
	if err != nil {
		return nil, err
	}
	if len(shape) != 3 || shape[1] < 5 {
		return nil, fmt.Errorf("unexpected detector output shape %v", shape)
	}

	rows, anchors := shape[1], shape[2]
	sx := float64(img.Cols()) / detectInputSize
	sy := float64(img.Rows()) / detectInputSize

	rects := make([]image.Rectangle, 0)
	scores := make([]float32, 0)
	classes := make([]int, 0)
	for a := 0; a < anchors; a++ {
		bestClass, bestScore := -1, float32(0)
		for r := 4; r < rows; r++ {
			if s := data[r*anchors+a]; s > bestScore {
				bestClass, bestScore = r-4, s
			}
		}
		if bestScore < scoreThreshold {
			continue
		}

		cx, cy := float64(data[a]), float64(data[anchors+a])
		w, h := float64(data[2*anchors+a]), float64(data[3*anchors+a])
		rects = append(rects, image.Rect(
			int((cx-w/2)*sx), int((cy-h/2)*sy),
			int((cx+w/2)*sx), int((cy+h/2)*sy),
		))
		scores = append(scores, bestScore)
		classes = append(classes, bestClass)
	}

	frame := DetectionFrame{
		Boxes:     &BoxTensor{Data: [][]float64{}},
		Names:     d.names,
		OrigShape: []int{img.Rows(), img.Cols()},
	}
	if len(rects) > 0 {
		for _, i := range gocv.NMSBoxes(rects, scores, scoreThreshold, nmsThreshold) {
			r := rects[i]
			frame.Boxes.Data = append(frame.Boxes.Data, []float64{
				float64(r.Min.X), float64(r.Min.Y), float64(r.Max.X), float64(r.Max.Y),
				float64(scores[i]), float64(classes[i]),
			})
		}
	}

	return &DetectionOutput{Frames: []DetectionFrame{frame}}, nil
}

// ONNXClassifier runs a YOLO classification export ([1, classes]).
type ONNXClassifier struct {
	net    *onnxNet
	labels []string
}

func NewONNXClassifier(modelPath string, labels []string) (*ONNXClassifier, error) {
	net, err := loadONNX(modelPath)
	if err != nil {
		return nil, err
	}
	return &ONNXClassifier{net: net, labels: labels}, nil
}

func (c *ONNXClassifier) Ready() bool  { return c.net.Ready() }
func (c *ONNXClassifier) Close() error { return c.net.Close() }

func (c *ONNXClassifier) Classify(ctx context.Context, imagePath string) (*ClassificationOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, err := readImage(imagePath)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	data, _, err := c.net.forward(img, classifyInputSize)
	if err != nil {
		return nil, err
	}

	probs := make([]float64, len(data))
	for i, v := range data {
		probs[i] = float64(v)
	}
	return &ClassificationOutput{Frames: []ClassificationFrame{{Probs: probs, Names: c.labels}}}, nil
}
