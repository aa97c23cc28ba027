package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadPipelineConfig_Defaults(t *testing.T) {
	t.Setenv("DETECTOR_URL", "http://localhost:9000/detect")
	t.Setenv("CLASSIFIER_URL", "http://localhost:9000/classify")

	cfg, err := LoadPipelineConfig(NewValidator())
	require.NoError(t, err)
	require.Equal(t, 10, cfg.CropMargin)
	require.Equal(t, "/static/images", cfg.PublicPrefix)
	require.Equal(t, "static/images", cfg.ImagesDir())
	require.Equal(t, 30*time.Second, cfg.Inference().Timeout)
	require.Equal(t, 15*time.Second, cfg.Inference().HealthInterval)
}

func TestLoadPipelineConfig_Invalid(t *testing.T) {
	cases := map[string]map[string]string{
		"bad int":         {"CROP_MARGIN": "ten"},
		"negative margin": {"CROP_MARGIN": "-1"},
		"unknown backend": {"DETECTOR_BACKEND": "tensorflow"},
		"missing url":     {"DETECTOR_URL": ""},
		"gemini no key":   {"CLASSIFIER_BACKEND": "gemini"},
		"zero workers":    {"CLASSIFY_WORKERS": "0"},
		"bad duration":    {"INFERENCE_TIMEOUT": "soon"},
	}

	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("DETECTOR_URL", "http://localhost:9000/detect")
			t.Setenv("CLASSIFIER_URL", "http://localhost:9000/classify")
			t.Setenv("GEMINI_API_KEY", "")
			for k, v := range env {
				t.Setenv(k, v)
			}

			_, err := LoadPipelineConfig(NewValidator())
			require.Error(t, err)
		})
	}
}
