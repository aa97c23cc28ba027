package inference

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	BackendHTTP      = "http"
	BackendWebsocket = "ws"
	BackendONNX      = "onnx"
	BackendGemini    = "gemini"
)

type Config struct {
	DetectorBackend    string
	ClassifierBackend  string
	SegmentationPath   string
	ClassificationPath string
	DetectorLabels     string
	ClassifierLabels   string
	DetectorURL        string
	ClassifierURL      string
	GeminiAPIKey       string
	GeminiModel        string
	Timeout            time.Duration
	// HealthInterval paces health checks (http) and pings/redials (ws).
	HealthInterval     time.Duration
}

// LoadModels builds both capabilities once. A capability that cannot be
// constructed is logged and left nil rather than aborting startup.
func LoadModels(ctx context.Context, log *logrus.Logger, cfg Config) *Models {
	models := &Models{
		SegmentationPath:   cfg.SegmentationPath,
		ClassificationPath: cfg.ClassificationPath,
	}

	log.WithFields(logrus.Fields{
		"backend": cfg.DetectorBackend,
		"path":    cfg.SegmentationPath,
		"url":     cfg.DetectorURL,
	}).Info("Loading segmentation model...")
	detector, err := newDetector(log, cfg)
	if err != nil {
		log.WithField("error", err.Error()).Error("ERROR loading segmentation model")
	} else {
		models.Detector = detector
		log.Info("Segmentation model loaded successfully!")
	}

	log.WithFields(logrus.Fields{
		"backend": cfg.ClassifierBackend,
		"path":    cfg.ClassificationPath,
		"url":     cfg.ClassifierURL,
	}).Info("Loading classification model...")
	classifier, err := newClassifier(ctx, log, cfg)
	if err != nil {
		log.WithField("error", err.Error()).Error("ERROR loading classification model")
	} else {
		models.Classifier = classifier
		log.Info("Classification model loaded successfully!")
	}

	return models
}

func newDetector(log *logrus.Logger, cfg Config) (Detector, error) {
	switch cfg.DetectorBackend {
	case BackendHTTP:
		return NewHTTPDetector(log, cfg.DetectorURL, cfg.Timeout, cfg.HealthInterval), nil
	case BackendWebsocket:
		return NewWSDetector(log, cfg.DetectorURL, cfg.Timeout, cfg.HealthInterval), nil
	case BackendONNX:
		labels, err := LoadLabels(cfg.DetectorLabels)
		if err != nil {
			return nil, fmt.Errorf("load detector labels: %w", err)
		}
		return NewONNXDetector(cfg.SegmentationPath, labels)
	default:
		return nil, fmt.Errorf("%w: detector %q", ErrUnknownBackend, cfg.DetectorBackend)
	}
}

func newClassifier(ctx context.Context, log *logrus.Logger, cfg Config) (Classifier, error) {
	switch cfg.ClassifierBackend {
	case BackendHTTP:
		return NewHTTPClassifier(log, cfg.ClassifierURL, cfg.Timeout, cfg.HealthInterval), nil
	case BackendWebsocket:
		return NewWSClassifier(log, cfg.ClassifierURL, cfg.Timeout, cfg.HealthInterval), nil
	case BackendONNX:
		labels, err := LoadLabels(cfg.ClassifierLabels)
		if err != nil {
			return nil, fmt.Errorf("load classifier labels: %w", err)
		}
		return NewONNXClassifier(cfg.ClassificationPath, labels)
	case BackendGemini:
		labels, err := LoadLabels(cfg.ClassifierLabels)
		if err != nil {
			return nil, fmt.Errorf("load classifier labels: %w", err)
		}
		return NewGeminiClassifier(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, labels)
	default:
		return nil, fmt.Errorf("%w: classifier %q", ErrUnknownBackend, cfg.ClassifierBackend)
	}
}
