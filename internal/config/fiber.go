package config

import (
	"TwoStageVision/pkg/handlerUtil"
	"errors"

	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

// NewFiber builds the app. Errors that escape a handler, including routing
// errors and recovered panics, are rendered as {"detail": ...}.
func NewFiber(logger *logrus.Logger, bodyLimit int) *fiber.App {
	app := fiber.New(
		fiber.Config{
			AppName:           "TwoStageVision",
			BodyLimit:         bodyLimit,
			DisableKeepalive:  false,
			StrictRouting:     true,
			CaseSensitive:     true,
			EnablePrintRoutes: false,
			JSONEncoder:       jsoniter.Marshal,
			JSONDecoder:       jsoniter.Unmarshal,
			ErrorHandler: func(c *fiber.Ctx, err error) error {
				code := fiber.StatusInternalServerError
				detail := "Internal server error"

				var fe *fiber.Error
				if errors.As(err, &fe) {
					code = fe.Code
					detail = fe.Message
				}

				if code >= fiber.StatusInternalServerError {
					logger.WithFields(logrus.Fields{
						"path":  c.Path(),
						"error": err.Error(),
					}).Error("Unhandled error")
				}

				return c.Status(code).JSON(handlerUtil.ErrorResponse{Detail: detail})
			},
		})

	return app
}
