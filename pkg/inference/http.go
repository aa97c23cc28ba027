package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// remoteModel posts images to an external model server as multipart/form-data
// (field "file") and decodes its JSON answer.
// Readiness follows {endpoint}/health, re-checked every healthInterval.
type remoteModel struct {
	endpoint       string
	client         *http.Client
	ready          atomic.Bool
	healthInterval time.Duration
	done           chan struct{}
	closeOnce      sync.Once
	log            *logrus.Logger
}

const defaultHealthInterval = 15 * time.Second

func newRemoteModel(log *logrus.Logger, endpoint string, timeout, healthInterval time.Duration) *remoteModel {
	if healthInterval <= 0 {
		healthInterval = defaultHealthInterval
	}
	m := &remoteModel{
		endpoint:       strings.TrimRight(endpoint, "/"),
		client:         &http.Client{Timeout: timeout},
		healthInterval: healthInterval,
		done:           make(chan struct{}),
		log:            log,
	}
	if err := m.CheckHealth(context.Background()); err != nil {
		log.WithFields(logrus.Fields{
			"endpoint": m.endpoint,
			"error":    err.Error(),
		}).Error("Inference service is not reachable")
	}

	go m.watchHealth()
	return m
}

func (m *remoteModel) watchHealth() {
	ticker := time.NewTicker(m.healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
		}

		wasReady := m.Ready()
		err := m.CheckHealth(context.Background())
		switch {
		case err != nil && wasReady:
			m.log.WithFields(logrus.Fields{
				"endpoint": m.endpoint,
				"error":    err.Error(),
			}).Warn("Inference service became unhealthy")
		case err == nil && !wasReady:
			m.log.WithField("endpoint", m.endpoint).Info("Inference service is healthy again")
		}
	}
}

// CheckHealth calls {endpoint}/health and records the outcome as readiness.
func (m *remoteModel) CheckHealth(ctx context.Context) error {
	if m.endpoint == "" {
		m.ready.Store(false)
		return fmt.Errorf("inference endpoint is not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.endpoint+"/health", nil)
	if err != nil {
		m.ready.Store(false)
		return err
	}

	resp, err := m.client.Do(req)
	if err != nil {
		m.ready.Store(false)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		m.ready.Store(false)
		return fmt.Errorf("inference service unhealthy: %d", resp.StatusCode)
	}

	m.ready.Store(true)
	return nil
}

func (m *remoteModel) Ready() bool {
	return m.ready.Load()
}

func (m *remoteModel) Close() error {
	m.closeOnce.Do(func() { close(m.done) })
	m.client.CloseIdleConnections()
	return nil
}

func (m *remoteModel) predict(ctx context.Context, imagePath string, out any) error {
	imageData, err := os.ReadFile(imagePath)
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", filepath.Base(imagePath))
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, bytes.NewReader(imageData)); err != nil {
		return fmt.Errorf("copy image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("inference failed with status: %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type HTTPDetector struct {
	*remoteModel
}

func NewHTTPDetector(log *logrus.Logger, endpoint string, timeout, healthInterval time.Duration) *HTTPDetector {
	return &HTTPDetector{remoteModel: newRemoteModel(log, endpoint, timeout, healthInterval)}
}

func (d *HTTPDetector) Detect(ctx context.Context, imagePath string) (*DetectionOutput, error) {
	var out DetectionOutput
	if err := d.predict(ctx, imagePath, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type HTTPClassifier struct {
	*remoteModel
}

func NewHTTPClassifier(log *logrus.Logger, endpoint string, timeout, healthInterval time.Duration) *HTTPClassifier {
	return &HTTPClassifier{remoteModel: newRemoteModel(log, endpoint, timeout, healthInterval)}
}

func (c *HTTPClassifier) Classify(ctx context.Context, imagePath string) (*ClassificationOutput, error) {
	var out ClassificationOutput
	if err := c.predict(ctx, imagePath, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
