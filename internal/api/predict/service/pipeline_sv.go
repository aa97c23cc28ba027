package predictService

import (
	"TwoStageVision/internal/api/predict"
	"TwoStageVision/internal/entity"
	"TwoStageVision/pkg/artifact"
	"TwoStageVision/pkg/inference"
	"TwoStageVision/pkg/log"
	"errors"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
	"golang.org/x/sync/errgroup"
)

const statusSuccess = "success"

func (s *predictService) Run(ctx context.Context, upload predict.Upload) (result *entity.PipelineResult, err error) {
	if !s.models.Ready() {
		return nil, predict.ErrModelsUnavailable
	}
	if !strings.HasPrefix(upload.ContentType, "image/") {
		return nil, predict.ErrUnsupportedMediaType
	}

	req := entity.Request{
		RequestID:        s.newID(),
		OriginalFilename: upload.Filename,
		ContentType:      upload.ContentType,
		FileExtension:    artifact.ExtensionOf(upload.Filename),
	}
	entry := log.WithRequestID(s.log, ctx).WithFields(logrus.Fields{
		"pipeline_id": req.RequestID,
		"filename":    req.OriginalFilename,
	})

	inputName := artifact.Name(req.RequestID, artifact.RoleInput, 0, req.FileExtension)

	defer func() {
		if r := recover(); r != nil {
			entry.WithField("panic", r).Error("Pipeline panicked")
			s.removeArtifact(entry, inputName)
			result, err = nil, fmt.Errorf("%w: %v", predict.ErrProcessing, r)
		}
	}()

	inputPath, err := s.store.Save(upload.Data, inputName)
	if err != nil {
		entry.WithField("error", err.Error()).Error("Failed to save upload")
		s.removeArtifact(entry, inputName)
		return nil, fmt.Errorf("%w: %v", predict.ErrStorage, err)
	}
	inputURL := s.store.URL(inputName)
	entry.WithField("path", inputPath).Debug("Upload saved")

	raw, err := callWithTimeout(ctx, s.cfg.InferenceTimeout, func(c context.Context) (*inference.DetectionOutput, error) {
		return s.models.Detector.Detect(c, inputPath)
	})
	if err != nil {
		entry.WithField("error", err.Error()).Error("Segmentation failed")
		s.removeArtifact(entry, inputName)
		return nil, fmt.Errorf("%w: %v", predict.ErrDetection, err)
	}

	results := FromDetectorOutput(raw)
	if entity.BoxCount(results) == 0 {
		entry.Info("No objects detected")
		return s.finish(ctx, entry, &entity.PipelineResult{
			Status:    statusSuccess,
			RequestID: req.RequestID,
			ImageURLs: entity.ImageURLs{Original: inputURL, Annotated: inputURL},
			Results:   []entity.DetectionResult{},
		}), nil
	}

	boxes := results[0].Boxes
	entry.WithField("boxes", len(boxes)).Info("Objects detected")

	s.classifyBoxes(ctx, entry, req, inputPath, boxes)
	annotatedURL := s.annotate(entry, req, inputName, inputPath, boxes)

	return s.finish(ctx, entry, &entity.PipelineResult{
		Status:    statusSuccess,
		RequestID: req.RequestID,
		ImageURLs: entity.ImageURLs{Original: inputURL, Annotated: annotatedURL},
		Results:   results,
	}), nil
}

// classifyBoxes crops and classifies every box in place. Failures stay
// attached to the box they belong to.
func (s *predictService) classifyBoxes(ctx context.Context, entry *logrus.Entry, req entity.Request, inputPath string, boxes []entity.DetectionBox) {
	img, err := artifact.DecodeFile(inputPath)
	if err != nil {
		entry.WithField("error", err.Error()).Warn("Failed to decode input, skipping crops")
		return
	}

	g := new(errgroup.Group)
	g.SetLimit(s.cfg.Workers)
	for i := range boxes {
		i := i
		g.Go(func() error {
			s.processBox(ctx, entry.WithField("box_index", i), req, img, i, &boxes[i])
			return nil
		})
	}
	_ = g.Wait()
}

func (s *predictService) processBox(ctx context.Context, entry *logrus.Entry, req entity.Request, img image.Image, index int, box *entity.DetectionBox) {
	defer func() {
		if r := recover(); r != nil {
			entry.WithField("panic", r).Error("Box processing panicked")
			box.Classification = entity.NewClassificationError(fmt.Sprint(r))
		}
	}()

	region, ok := cropRegion(*box, img.Bounds(), s.cfg.CropMargin)
	if !ok {
		entry.Debug("Empty crop region")
		box.Classification = &entity.ClassificationOutcome{Status: entity.ClassificationNoClassification}
		return
	}

	cropName := artifact.Name(req.RequestID, artifact.RoleCrop, index, req.FileExtension)
	cropPath, err := s.store.SaveImage(cropImage(img, region), cropName)
	if err != nil {
		entry.WithField("error", err.Error()).Warn("Failed to save crop")
		return
	}
	cropURL := s.store.URL(cropName)
	box.CropURL = &cropURL

	raw, err := callWithTimeout(ctx, s.cfg.InferenceTimeout, func(c context.Context) (*inference.ClassificationOutput, error) {
		return s.models.Classifier.Classify(c, cropPath)
	})
	if err != nil {
		entry.WithField("error", err.Error()).Warn("Classification failed")
		box.Classification = entity.NewClassificationError(err.Error())
		return
	}

	box.Classification = FromClassifierOutput(raw, index)
}

// annotate returns the public URL of the annotated image. When drawing fails
// the input is copied in its place, and when that fails too the input URL is
// returned.
func (s *predictService) annotate(entry *logrus.Entry, req entity.Request, inputName, inputPath string, boxes []entity.DetectionBox) string {
	annotatedName := artifact.Name(req.RequestID, artifact.RoleAnnotated, 0, req.FileExtension)

	_, err := s.annotator.Annotate(inputPath, boxes, s.store.Path(annotatedName))
	if err == nil {
		if err := s.store.Publish(annotatedName); err != nil {
			entry.WithField("error", err.Error()).Warn("Failed to publish annotated image")
		}
		return s.store.URL(annotatedName)
	}

	entry.WithField("error", err.Error()).Warn("Annotation failed, falling back to the input image")
	if _, err := s.store.Copy(inputName, annotatedName); err != nil {
		entry.WithField("error", err.Error()).Error("Failed to copy input as annotated image")
		return s.store.URL(inputName)
	}
	return s.store.URL(annotatedName)
}

func (s *predictService) finish(ctx context.Context, entry *logrus.Entry, result *entity.PipelineResult) *entity.PipelineResult {
	if err := s.cacheResult(ctx, result); err != nil {
		entry.WithField("error", err.Error()).Warn("Failed to cache result")
	}
	entry.WithField("annotated", result.ImageURLs.Annotated).Info("Pipeline finished")
	return result
}

func (s *predictService) removeArtifact(entry *logrus.Entry, name string) {
	if err := s.store.Remove(name); err != nil {
		entry.WithFields(logrus.Fields{
			"artifact": name,
			"error":    err.Error(),
		}).Warn("Failed to remove artifact")
	}
}

var errInferencePanic = errors.New("inference panicked")

// callWithTimeout runs fn on its own goroutine so a backend that ignores ctx
// still cannot hold the request past timeout. A non-positive timeout only
// inherits the parent deadline.
func callWithTimeout[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("%w: %v", errInferencePanic, r)}
			}
		}()
		v, err := fn(ctx)
		done <- outcome{value: v, err: err}
	}()

	select {
	case o := <-done:
		return o.value, o.err
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("inference timed out: %w", ctx.Err())
	}
}
