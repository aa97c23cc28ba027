package entity

// Request is the per-run identity of one /predict call. Every artifact the
// run produces is namespaced by RequestID.
type Request struct {
	RequestID        string
	OriginalFilename string
	ContentType      string
	FileExtension    string
}

type ClassificationStatus string

const (
	ClassificationSuccess          ClassificationStatus = "success"
	ClassificationNoClassification ClassificationStatus = "no_classification"
	ClassificationNoProbs          ClassificationStatus = "no_probs"
	ClassificationError            ClassificationStatus = "error"
)

type TopClass struct {
	ClassID     int     `json:"class_id"`
	ClassName   string  `json:"class_name"`
	Probability float64 `json:"probability"`
}

// ClassificationOutcome is a tagged variant keyed by Status. TopClasses is
// only set for success, Message only for error.
type ClassificationOutcome struct {
	Status     ClassificationStatus `json:"status"`
	TopClasses []TopClass           `json:"top_classes,omitempty"`
	Message    string               `json:"message,omitempty"`
}

func NewClassificationError(message string) *ClassificationOutcome {
	return &ClassificationOutcome{Status: ClassificationError, Message: message}
}

// Top returns the highest ranked class of a successful outcome.
func (o *ClassificationOutcome) Top() (TopClass, bool) {
	if o == nil || o.Status != ClassificationSuccess || len(o.TopClasses) == 0 {
		return TopClass{}, false
	}
	return o.TopClasses[0], true
}

type DetectionBox struct {
	X1             float64                `json:"x1"`
	Y1             float64                `json:"y1"`
	X2             float64                `json:"x2"`
	Y2             float64                `json:"y2"`
	Confidence     float64                `json:"confidence"`
	ClassID        int                    `json:"class"`
	ClassName      string                 `json:"class_name"`
	Classification *ClassificationOutcome `json:"classification_results"`
	CropURL        *string                `json:"crop_url"`
}

// SegmentationMask holds the mask rows of one object, aligned by index with
// the boxes of the same DetectionResult.
type SegmentationMask [][]float64

type DetectionResult struct {
	Boxes []DetectionBox     `json:"boxes"`
	Masks []SegmentationMask `json:"masks"`
	Shape []int              `json:"shape"`
}

// BoxCount sums the boxes across all detector frames.
func BoxCount(results []DetectionResult) int {
	n := 0
	for _, r := range results {
		n += len(r.Boxes)
	}
	return n
}

type ImageURLs struct {
	Original  string `json:"original_image"`
	Annotated string `json:"annotated_image"`
}

type PipelineResult struct {
	Status    string            `json:"status"`
	RequestID string            `json:"request_id"`
	ImageURLs ImageURLs         `json:"image_urls"`
	Results   []DetectionResult `json:"results"`
}
