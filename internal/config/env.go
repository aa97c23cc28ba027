package config

import (
	"TwoStageVision/pkg/inference"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

// PipelineConfig is everything the service reads from the environment.
type PipelineConfig struct {
	AppPort      string `validate:"required,numeric"`
	AppEnv       string
	StaticRoot   string `validate:"required"`
	PublicPrefix string `validate:"required,startswith=/"`

	CropMargin       int           `validate:"gte=0"`
	ClassifyWorkers  int           `validate:"gte=1,lte=64"`
	InferenceTimeout time.Duration `validate:"gt=0"`
	RequestTimeout   time.Duration `validate:"gtfield=InferenceTimeout"`
	HealthInterval   time.Duration `validate:"gt=0"`
	MaxUploadMB      int           `validate:"gte=1,lte=50"`

	DetectorBackend    string `validate:"oneof=http ws onnx"`
	ClassifierBackend  string `validate:"oneof=http ws onnx gemini"`
	SegmentationPath   string
	ClassificationPath string
	DetectorLabels     string
	ClassifierLabels   string
	DetectorURL        string `validate:"omitempty,url"`
	ClassifierURL      string `validate:"omitempty,url"`
	GeminiAPIKey       string `validate:"required_if=ClassifierBackend gemini"`
	GeminiModel        string

	RateLimitRPS   float64 `validate:"gt=0"`
	RateLimitBurst int     `validate:"gte=1"`

	ArtifactTTL  time.Duration `validate:"gte=0"`
	ResultTTL    time.Duration `validate:"gte=0"`
	RedisEnabled bool
	S3Enabled    bool
}

// ImagesDir is where artifacts are written. The server mounts it at
// PublicPrefix.
func (c PipelineConfig) ImagesDir() string {
	return c.StaticRoot + "/images"
}

func (c PipelineConfig) Inference() inference.Config {
	return inference.Config{
		DetectorBackend:    c.DetectorBackend,
		ClassifierBackend:  c.ClassifierBackend,
		SegmentationPath:   c.SegmentationPath,
		ClassificationPath: c.ClassificationPath,
		DetectorLabels:     c.DetectorLabels,
		ClassifierLabels:   c.ClassifierLabels,
		DetectorURL:        c.DetectorURL,
		ClassifierURL:      c.ClassifierURL,
		GeminiAPIKey:       c.GeminiAPIKey,
		GeminiModel:        c.GeminiModel,
		Timeout:            c.InferenceTimeout,
		HealthInterval:     c.HealthInterval,
	}
}

// LoadPipelineConfig reads the environment, applies defaults and validates
// the result.
func LoadPipelineConfig(v *validator.Validate) (PipelineConfig, error) {
	var errs []error
	cfg := PipelineConfig{
		AppPort:            getEnv("APP_PORT", "8000"),
		AppEnv:             getEnv("APP_ENV", "development"),
		StaticRoot:         getEnv("STATIC_ROOT", "static"),
		PublicPrefix:       getEnv("PUBLIC_PREFIX", "/static/images"),
		CropMargin:         getInt("CROP_MARGIN", 10, &errs),
		ClassifyWorkers:    getInt("CLASSIFY_WORKERS", 4, &errs),
		InferenceTimeout:   getDuration("INFERENCE_TIMEOUT", 30*time.Second, &errs),
		RequestTimeout:     getDuration("REQUEST_TIMEOUT", 2*time.Minute, &errs),
		HealthInterval:     getDuration("MODEL_HEALTH_INTERVAL", 15*time.Second, &errs),
		MaxUploadMB:        getInt("MAX_UPLOAD_MB", 20, &errs),
		DetectorBackend:    getEnv("DETECTOR_BACKEND", "http"),
		ClassifierBackend:  getEnv("CLASSIFIER_BACKEND", "http"),
		SegmentationPath:   getEnv("SEGMENTATION_MODEL_PATH", "models/yolov8n-seg.onnx"),
		ClassificationPath: getEnv("CLASSIFICATION_MODEL_PATH", "models/yolov8n-cls.onnx"),
		DetectorLabels:     os.Getenv("DETECTION_LABELS_PATH"),
		ClassifierLabels:   os.Getenv("CLASSIFICATION_LABELS_PATH"),
		DetectorURL:        os.Getenv("DETECTOR_URL"),
		ClassifierURL:      os.Getenv("CLASSIFIER_URL"),
		GeminiAPIKey:       os.Getenv("GEMINI_API_KEY"),
		GeminiModel:        os.Getenv("GEMINI_MODEL_NAME"),
		RateLimitRPS:       getFloat("RATE_LIMIT_RPS", 5, &errs),
		RateLimitBurst:     getInt("RATE_LIMIT_BURST", 10, &errs),
		ArtifactTTL:        getDuration("ARTIFACT_TTL", 24*time.Hour, &errs),
		ResultTTL:          getDuration("RESULT_TTL", time.Hour, &errs),
		RedisEnabled:       os.Getenv("REDIS_ADDRESS") != "",
		S3Enabled:          os.Getenv("AWS_BUCKET_NAME") != "",
	}
	if len(errs) > 0 {
		return cfg, errs[0]
	}

	if err := v.Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.DetectorBackend != inference.BackendONNX && cfg.DetectorURL == "" {
		return cfg, fmt.Errorf("invalid configuration: DETECTOR_URL is required for the %s backend", cfg.DetectorBackend)
	}
	if (cfg.ClassifierBackend == inference.BackendHTTP || cfg.ClassifierBackend == inference.BackendWebsocket) && cfg.ClassifierURL == "" {
		return cfg, fmt.Errorf("invalid configuration: CLASSIFIER_URL is required for the %s backend", cfg.ClassifierBackend)
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int, errs *[]error) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return v
}

func getFloat(key string, fallback float64, errs *[]error) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return v
}

func getDuration(key string, fallback time.Duration, errs *[]error) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return v
}
