package predict

import "TwoStageVision/pkg/inference"

// Upload is one image received on /predict.
type Upload struct {
	Data        []byte
	Filename    string
	ContentType string
}

type ResultRequest struct {
	RequestID string `validate:"required,uuid4"`
}

type HealthResponse struct {
	Status                    string              `json:"status"`
	SegmentationModelLoaded   bool                `json:"segmentation_model_loaded"`
	ClassificationModelLoaded bool                `json:"classification_model_loaded"`
	ModelFileCheck            inference.FileCheck `json:"model_file_check"`
}
