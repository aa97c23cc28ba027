package config

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"TwoStageVision/pkg/annotator"
	"TwoStageVision/pkg/inference"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, cfg PipelineConfig) *Server {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	server, err := NewServer(
		WithFiber(NewFiber(logger, 1<<20)),
		WithLogger(logger),
		WithConfig(cfg),
		WithValidator(NewValidator()),
		WithModels(&inference.Models{}),
		WithUtils(),
		WithMiddleware(),
		WithAnnotator(annotator.New()),
		WithArtifactStore(),
	)
	require.NoError(t, err)

	server.RegisterHandler()
	server.Mount()
	return server
}

func TestServer_ServesArtifactsUnderPublicPrefix(t *testing.T) {
	cfg := PipelineConfig{
		StaticRoot:     t.TempDir(),
		PublicPrefix:   "/media",
		RateLimitRPS:   100,
		RateLimitBurst: 100,
	}
	require.NoError(t, os.MkdirAll(cfg.ImagesDir(), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.ImagesDir(), "input_r1.png"), []byte("png"), 0o644))

	app := newTestServer(t, cfg).App()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/media/input_r1.png", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "png", string(body))

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestServer_HealthWithoutModels(t *testing.T) {
	app := newTestServer(t, PipelineConfig{
		StaticRoot:     t.TempDir(),
		PublicPrefix:   "/static/images",
		RateLimitRPS:   100,
		RateLimitBurst: 100,
	}).App()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `"segmentation_model_loaded":false`)
}
