package predictHandler

import (
	predictService "TwoStageVision/internal/api/predict/service"
	"TwoStageVision/internal/middleware"
	"TwoStageVision/pkg/utils"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type PredictHandler struct {
	log            *logrus.Logger
	validator      *validator.Validate
	middleware     middleware.Middleware
	predictService predictService.IPredictService
	utils          utils.IUtils
	timeout        time.Duration
}

// New wires the /predict and /health routes. timeout bounds a whole
// pipeline run.
func New(
	log *logrus.Logger,
	validator *validator.Validate,
	middleware middleware.Middleware,
	ps predictService.IPredictService,
	utils utils.IUtils,
	timeout time.Duration,
) *PredictHandler {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &PredictHandler{
		predictService: ps,
		log:            log,
		validator:      validator,
		middleware:     middleware,
		utils:          utils,
		timeout:        timeout,
	}
}

func (h *PredictHandler) Start(srv fiber.Router) {
	srv.Post("/predict", h.middleware.NewRateLimiter, h.Predict)
	srv.Get("/predict/:request_id", h.GetResult)

	srv.Get("/health", h.Health)
}
