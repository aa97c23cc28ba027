package predictService

import (
	"TwoStageVision/internal/api/predict"
	"TwoStageVision/internal/entity"
	"TwoStageVision/pkg/redis"
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func (s *predictService) cacheResult(ctx context.Context, result *entity.PipelineResult) error {
	if s.cache == nil {
		return nil
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	return s.cache.SetResult(ctx, result.RequestID, payload, s.cfg.ResultTTL)
}

func (s *predictService) GetResult(ctx context.Context, requestID string) (*entity.PipelineResult, error) {
	if s.cache == nil {
		return nil, predict.ErrResultNotFound
	}

	payload, err := s.cache.GetResult(ctx, requestID)
	if errors.Is(err, redis.ErrCacheMiss) {
		return nil, predict.ErrResultNotFound
	} else if err != nil {
		return nil, fmt.Errorf("load cached result: %w", err)
	}

	var result entity.PipelineResult
	if err := json.Unmarshal(payload, &result); err != nil {
		entry := s.log.WithFields(logrus.Fields{
			"pipeline_id": requestID,
			"error":       err.Error(),
		})
		entry.Warn("Cached result is unreadable, evicting it")
		if err := s.cache.DeleteResult(ctx, requestID); err != nil {
			entry.WithField("error", err.Error()).Warn("Failed to evict cached result")
		}
		return nil, predict.ErrResultNotFound
	}
	return &result, nil
}

func (s *predictService) Health() predict.HealthResponse {
	return predict.HealthResponse{
		Status:                    "healthy",
		SegmentationModelLoaded:   s.models.DetectorLoaded(),
		ClassificationModelLoaded: s.models.ClassifierLoaded(),
		ModelFileCheck:            s.models.CheckFiles(),
	}
}

// Ready reports whether both models can serve a prediction right now.
func (s *predictService) Ready() bool {
	return s.models.Ready()
}
