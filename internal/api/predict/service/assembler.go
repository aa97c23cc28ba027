package predictService

import (
	"TwoStageVision/internal/entity"
	"TwoStageVision/pkg/inference"
	"math"
	"sort"
)

const (
	topK         = 5
	unknownClass = "unknown"
)

// FromDetectorOutput converts raw detector frames into the response shape.
// Frames carrying neither boxes nor masks are dropped; a nil output yields an
// empty, non-nil slice.
func FromDetectorOutput(raw *inference.DetectionOutput) []entity.DetectionResult {
	results := []entity.DetectionResult{}
	if raw == nil {
		return results
	}

	for _, frame := range raw.Frames {
		if frame.Boxes == nil && frame.Masks == nil {
			continue
		}

		result := entity.DetectionResult{
			Boxes: []entity.DetectionBox{},
			Masks: []entity.SegmentationMask{},
			Shape: []int{},
		}
		if frame.Boxes != nil {
			for _, row := range frame.Boxes.Data {
				box, ok := boxFromRow(row, frame.Names)
				if ok {
					result.Boxes = append(result.Boxes, box)
				}
			}
		}
		if frame.Masks != nil {
			for _, m := range frame.Masks.Data {
				result.Masks = append(result.Masks, entity.SegmentationMask(m))
			}
		}
		if frame.OrigShape != nil {
			result.Shape = append(result.Shape, frame.OrigShape...)
		}
		results = append(results, result)
	}

	return results
}

// boxFromRow reads one [x1, y1, x2, y2, conf, cls] row.
func boxFromRow(row []float64, names map[int]string) (entity.DetectionBox, bool) {
	if len(row) < 6 {
		return entity.DetectionBox{}, false
	}
	for _, v := range row[:6] {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return entity.DetectionBox{}, false
		}
	}

	x1, y1, x2, y2 := row[0], row[1], row[2], row[3]
	if x1 > x2 {
		x1, x2 = x2, x1
	}
	if y1 > y2 {
		y1, y2 = y2, y1
	}

	classID := int(row[5])
	name, ok := names[classID]
	if !ok {
		name = unknownClass
	}

	return entity.DetectionBox{
		X1:         x1,
		Y1:         y1,
		X2:         x2,
		Y2:         y2,
		Confidence: math.Min(1, math.Max(0, row[4])),
		ClassID:    classID,
		ClassName:  name,
	}, true
}

// FromClassifierOutput ranks the first frame's probabilities and keeps the
// top five whose index exists in the name table. Ties keep index order.
// boxIndex only identifies the crop the output belongs to.
func FromClassifierOutput(raw *inference.ClassificationOutput, boxIndex int) *entity.ClassificationOutcome {
	_ = boxIndex

	if raw == nil || len(raw.Frames) == 0 {
		return &entity.ClassificationOutcome{Status: entity.ClassificationNoClassification}
	}

	frame := raw.Frames[0]
	if frame.Probs == nil {
		return &entity.ClassificationOutcome{Status: entity.ClassificationNoProbs}
	}

	// NaN compares false both ways and would stall the sort around it.
	order := make([]int, 0, len(frame.Probs))
	for i, p := range frame.Probs {
		if !math.IsNaN(p) {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(a, b int) bool {
		return frame.Probs[order[a]] > frame.Probs[order[b]]
	})

	if len(order) > topK {
		order = order[:topK]
	}

	top := make([]entity.TopClass, 0, len(order))
	for _, idx := range order {
		if idx >= len(frame.Names) {
			continue
		}
		top = append(top, entity.TopClass{
			ClassID:     idx,
			ClassName:   frame.Names[idx],
			Probability: frame.Probs[idx],
		})
	}

	return &entity.ClassificationOutcome{Status: entity.ClassificationSuccess, TopClasses: top}
}
