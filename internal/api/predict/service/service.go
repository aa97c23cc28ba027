package predictService

import (
	"TwoStageVision/internal/api/predict"
	"TwoStageVision/internal/entity"
	"TwoStageVision/pkg/annotator"
	"TwoStageVision/pkg/artifact"
	"TwoStageVision/pkg/inference"
	"TwoStageVision/pkg/redis"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
)

type IPredictService interface {
	Run(ctx context.Context, upload predict.Upload) (*entity.PipelineResult, error)
	GetResult(ctx context.Context, requestID string) (*entity.PipelineResult, error)
	Health() predict.HealthResponse
	Ready() bool
}

type Config struct {
	CropMargin       int
	Workers          int
	InferenceTimeout time.Duration
	ResultTTL        time.Duration
}

type predictService struct {
	log       *logrus.Logger
	models    *inference.Models
	store     artifact.IArtifactStore
	annotator annotator.IAnnotator
	cache     redis.IRedis
	cfg       Config
	newID     func() string
}

type Option func(*predictService)

// WithResultCache keeps finished results in redis so GET /predict/:id can
// serve them again.
func WithResultCache(cache redis.IRedis) Option {
	return func(s *predictService) {
		s.cache = cache
	}
}

func WithIDGenerator(fn func() string) Option {
	return func(s *predictService) {
		s.newID = fn
	}
}

func NewPredictService(
	log *logrus.Logger,
	models *inference.Models,
	store artifact.IArtifactStore,
	annotator annotator.IAnnotator,
	cfg Config,
	opts ...Option,
) IPredictService {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.CropMargin < 0 {
		cfg.CropMargin = 0
	}

	s := &predictService{
		log:       log,
		models:    models,
		store:     store,
		annotator: annotator,
		cfg:       cfg,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}
