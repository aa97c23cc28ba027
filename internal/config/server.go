package config

import (
	predictHandler "TwoStageVision/internal/api/predict/handler"
	predictService "TwoStageVision/internal/api/predict/service"
	"TwoStageVision/internal/middleware"
	"TwoStageVision/pkg/annotator"
	"TwoStageVision/pkg/artifact"
	"TwoStageVision/pkg/inference"
	"TwoStageVision/pkg/redis"
	"TwoStageVision/pkg/s3"
	"TwoStageVision/pkg/utils"
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

type ServerOption func(*Server) error

type Server struct {
	engine        *fiber.App
	log           *logrus.Logger
	cfg           PipelineConfig
	middleware    middleware.Middleware
	validator     *validator.Validate
	utils         utils.IUtils
	models        *inference.Models
	artifactStore artifact.IArtifactStore
	annotator     annotator.IAnnotator
	redisServer   redis.IRedis
	s3Client      s3.ItfS3
	handlers      []handler
}

type handler interface {
	Start(srv fiber.Router)
}

func NewServer(options ...ServerOption) (*Server, error) {
	server := &Server{}

	for _, option := range options {
		if err := option(server); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if server.engine == nil {
		return nil, fmt.Errorf("fiber app is required")
	}
	if server.log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if server.models == nil {
		return nil, fmt.Errorf("models are required")
	}

	return server, nil
}

func WithFiber(fiberApp *fiber.App) ServerOption {
	return func(s *Server) error {
		s.engine = fiberApp
		return nil
	}
}

func WithLogger(logger *logrus.Logger) ServerOption {
	return func(s *Server) error {
		s.log = logger
		return nil
	}
}

func WithConfig(cfg PipelineConfig) ServerOption {
	return func(s *Server) error {
		s.cfg = cfg
		return nil
	}
}

func WithValidator(validator *validator.Validate) ServerOption {
	return func(s *Server) error {
		s.validator = validator
		return nil
	}
}

func WithModels(models *inference.Models) ServerOption {
	return func(s *Server) error {
		s.models = models
		return nil
	}
}

func WithUtils() ServerOption {
	return func(s *Server) error {
		s.utils = utils.New(int64(s.cfg.MaxUploadMB) << 20)
		return nil
	}
}

func WithMiddleware() ServerOption {
	return func(s *Server) error {
		if s.log == nil {
			return fmt.Errorf("logger must be initialized before middleware")
		}
		if s.utils == nil {
			return fmt.Errorf("utils must be initialized before middleware")
		}
		s.middleware = middleware.New(s.log, s.utils, rate.Limit(s.cfg.RateLimitRPS), s.cfg.RateLimitBurst)
		return nil
	}
}

func WithRedisServer(redisServer redis.IRedis) ServerOption {
	return func(s *Server) error {
		s.redisServer = redisServer
		return nil
	}
}

// WithS3Client mirrors artifacts to S3. A client that cannot be built is
// logged and skipped; the local store keeps working without it.
func WithS3Client() ServerOption {
	return func(s *Server) error {
		client, err := s3.New()
		if err != nil {
			if s.log != nil {
				s.log.Errorf("Failed to initialize S3 client: %v", err)
			}
			return nil
		}
		s.s3Client = client
		return nil
	}
}

// WithArtifactStore must come after WithS3Client when mirroring is wanted.
func WithArtifactStore() ServerOption {
	return func(s *Server) error {
		if s.log == nil {
			return fmt.Errorf("logger must be initialized before the artifact store")
		}
		var opts []artifact.Option
		if s.s3Client != nil {
			opts = append(opts, artifact.WithMirror(s.s3Client))
		}
		s.artifactStore = artifact.New(s.log, s.cfg.ImagesDir(), s.cfg.PublicPrefix, opts...)
		return nil
	}
}

func WithAnnotator(a annotator.IAnnotator) ServerOption {
	return func(s *Server) error {
		s.annotator = a
		return nil
	}
}

func (s *Server) RegisterHandler() {
	var opts []predictService.Option
	if s.redisServer != nil {
		opts = append(opts, predictService.WithResultCache(s.redisServer))
	}

	predictServices := predictService.NewPredictService(s.log, s.models, s.artifactStore, s.annotator, predictService.Config{
		CropMargin:       s.cfg.CropMargin,
		Workers:          s.cfg.ClassifyWorkers,
		InferenceTimeout: s.cfg.InferenceTimeout,
		ResultTTL:        s.cfg.ResultTTL,
	}, opts...)
	predictHandlers := predictHandler.New(s.log, s.validator, s.middleware, predictServices, s.utils, s.cfg.RequestTimeout)

	s.handlers = append(s.handlers, predictHandlers)
}

// App exposes the configured engine.
func (s *Server) App() *fiber.App {
	return s.engine
}

// Mount installs the middleware chain, the static mount and every
// registered handler. It is called once, before Run.
func (s *Server) Mount() {
	s.engine.Use(recover.New(recover.Config{EnableStackTrace: s.cfg.AppEnv != "production"}))
	s.engine.Use(cors.New())
	s.engine.Use(s.middleware.NewRequestIDMiddleware())
	s.engine.Use(s.middleware.NewLoggingMiddleware())

	s.engine.Static(s.cfg.PublicPrefix, s.cfg.ImagesDir())
	s.setupHealthCheck()

	for _, h := range s.handlers {
		h.Start(s.engine)
	}
}

// StartJanitor sweeps expired artifacts, and their S3 copies when mirroring
// is on, until ctx is done. A zero ARTIFACT_TTL disables it.
func (s *Server) StartJanitor(ctx context.Context) {
	if s.cfg.ArtifactTTL <= 0 {
		return
	}

	var mirror artifact.Mirror
	if s.s3Client != nil {
		mirror = s.s3Client
	}
	janitor := artifact.NewJanitor(s.log, s.cfg.ImagesDir(), s.cfg.ArtifactTTL, s.cfg.ArtifactTTL/4, mirror)
	go janitor.Run(ctx)
}

func (s *Server) Run() error {
	return s.engine.Listen(fmt.Sprintf(":%s", s.cfg.AppPort))
}

func (s *Server) Shutdown() error {
	var errs []error
	errs = append(errs, s.engine.Shutdown())
	if s.redisServer != nil {
		errs = append(errs, s.redisServer.Close())
	}
	errs = append(errs, s.models.Close())
	return errors.Join(errs...)
}

func (s *Server) setupHealthCheck() {
	s.engine.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.JSON(fiber.Map{
			"message": "Server is Healthy!",
		})
	})
}
