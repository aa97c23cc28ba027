package predict

import (
	"TwoStageVision/pkg/response"
	"net/http"
)

var (
	ErrModelsUnavailable    = response.NewError(http.StatusInternalServerError, "Models not loaded")
	ErrUnsupportedMediaType = response.NewError(http.StatusBadRequest, "File must be an image")
	ErrNoFileUploaded       = response.NewError(http.StatusBadRequest, "No file uploaded")
	ErrFileTooLarge         = response.NewError(http.StatusRequestEntityTooLarge, "File too large")
	ErrStorage              = response.NewError(http.StatusInternalServerError, "Error processing image: failed to store upload")
	ErrDetection            = response.NewError(http.StatusInternalServerError, "Error processing image: segmentation failed")
	ErrProcessing           = response.NewError(http.StatusInternalServerError, "Error processing image")
	ErrResultNotFound       = response.NewError(http.StatusNotFound, "Result not found")
)
