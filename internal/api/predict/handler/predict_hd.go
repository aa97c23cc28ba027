package predictHandler

import (
	"TwoStageVision/internal/api/predict"
	contextPkg "TwoStageVision/pkg/context"
	"TwoStageVision/pkg/handlerUtil"
	"TwoStageVision/pkg/log"
	"TwoStageVision/pkg/utils"
	"errors"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/net/context"
)

func (h *PredictHandler) Predict(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), h.timeout)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	file, err := ctx.FormFile("file")
	if err != nil {
		return errHandler.Handle(ctx, requestID, predict.ErrNoFileUploaded, ctx.Path(), "form_file")
	}

	h.log.WithFields(log.Fields{
		"request_id":   requestID,
		"path":         ctx.Path(),
		"file_name":    file.Filename,
		"file_size":    file.Size,
		"content_type": file.Header.Get(fiber.HeaderContentType),
	}).Debug("Processing predict request")

	if !h.predictService.Ready() {
		return errHandler.Handle(ctx, requestID, predict.ErrModelsUnavailable, ctx.Path(), "models_ready")
	}
	if err := h.utils.ValidateImageFile(file); err != nil {
		return errHandler.Handle(ctx, requestID, uploadError(err), ctx.Path(), "validate_image_file")
	}

	data, err := h.utils.ReadFile(file)
	if err != nil {
		return errHandler.Handle(ctx, requestID, uploadError(err), ctx.Path(), "read_file")
	}

	result, err := h.predictService.Run(c, predict.Upload{
		Data:        data,
		Filename:    file.Filename,
		ContentType: file.Header.Get(fiber.HeaderContentType),
	})
	if err != nil {
		if errors.Is(c.Err(), context.DeadlineExceeded) {
			h.log.WithFields(log.Fields{
				"request_id": requestID,
				"path":       ctx.Path(),
				"error":      err.Error(),
			}).Warn("Predict request exceeded its deadline")
			return errHandler.HandleRequestTimeout(ctx)
		}
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "predict")
	}

	h.log.WithFields(log.Fields{
		"request_id":  requestID,
		"pipeline_id": result.RequestID,
		"objects":     len(result.Results),
	}).Info("Prediction successful")

	return errHandler.HandleSuccess(ctx, fiber.StatusOK, result)
}

func (h *PredictHandler) GetResult(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	errHandler := handlerUtil.New(h.log)

	req := predict.ResultRequest{RequestID: ctx.Params("request_id")}
	if err := h.validator.Struct(req); err != nil {
		return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
	}

	result, err := h.predictService.GetResult(contextPkg.FromFiberCtx(ctx), req.RequestID)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "get_result")
	}

	return errHandler.HandleSuccess(ctx, fiber.StatusOK, result)
}

func (h *PredictHandler) Health(ctx *fiber.Ctx) error {
	return handlerUtil.New(h.log).HandleSuccess(ctx, fiber.StatusOK, h.predictService.Health())
}

// uploadError maps upload validation failures onto response errors.
func uploadError(err error) error {
	switch {
	case errors.Is(err, utils.ErrNoFile):
		return predict.ErrNoFileUploaded
	case errors.Is(err, utils.ErrNotAnImage):
		return predict.ErrUnsupportedMediaType
	case errors.Is(err, utils.ErrFileTooLarge):
		return predict.ErrFileTooLarge
	default:
		return err
	}
}
