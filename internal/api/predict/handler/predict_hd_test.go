package predictHandler

import (
	"bytes"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"TwoStageVision/internal/api/predict"
	"TwoStageVision/internal/entity"
	"TwoStageVision/internal/middleware"
	"TwoStageVision/pkg/utils"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/context"
)

type fakeService struct {
	got         *predict.Upload
	result      *entity.PipelineResult
	err         error
	cached      map[string]*entity.PipelineResult
	modelsDown  bool
	untilExpiry bool
}

func (f *fakeService) Run(ctx context.Context, upload predict.Upload) (*entity.PipelineResult, error) {
	f.got = &upload
	if f.untilExpiry {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.result, f.err
}

func (f *fakeService) Ready() bool {
	return !f.modelsDown
}

func (f *fakeService) GetResult(ctx context.Context, requestID string) (*entity.PipelineResult, error) {
	if r, ok := f.cached[requestID]; ok {
		return r, nil
	}
	return nil, predict.ErrResultNotFound
}

func (f *fakeService) Health() predict.HealthResponse {
	return predict.HealthResponse{Status: "healthy", SegmentationModelLoaded: true}
}

func newTestApp(svc *fakeService) *fiber.App {
	return newTestAppWithTimeout(svc, 0)
}

func newTestAppWithTimeout(svc *fakeService, timeout time.Duration) *fiber.App {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	u := utils.New(1 << 20)
	m := middleware.New(logger, u, 100, 100)

	app := fiber.New()
	app.Use(m.NewRequestIDMiddleware())
	New(logger, validator.New(), m, svc, u, timeout).Start(app)
	return app
}

func multipartRequest(t *testing.T, field, filename, contentType string, data []byte) *http.Request {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/predict", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestPredict_Success(t *testing.T) {
	svc := &fakeService{result: &entity.PipelineResult{
		Status:    "success",
		RequestID: "8f14e45f-ceea-4e7a-9b1c-6d2a0f1e2b3c",
		ImageURLs: entity.ImageURLs{
			Original:  "/static/images/input_8f14e45f-ceea-4e7a-9b1c-6d2a0f1e2b3c.png",
			Annotated: "/static/images/annotated_8f14e45f-ceea-4e7a-9b1c-6d2a0f1e2b3c.png",
		},
		Results: []entity.DetectionResult{},
	}}

	resp, err := newTestApp(svc).Test(multipartRequest(t, "file", "cat.png", "image/png", []byte("png-bytes")))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{
		"status": "success",
		"request_id": "8f14e45f-ceea-4e7a-9b1c-6d2a0f1e2b3c",
		"image_urls": {
			"original_image": "/static/images/input_8f14e45f-ceea-4e7a-9b1c-6d2a0f1e2b3c.png",
			"annotated_image": "/static/images/annotated_8f14e45f-ceea-4e7a-9b1c-6d2a0f1e2b3c.png"
		},
		"results": []
	}`, readBody(t, resp))

	require.NotNil(t, svc.got)
	require.Equal(t, "cat.png", svc.got.Filename)
	require.Equal(t, "image/png", svc.got.ContentType)
	require.Equal(t, []byte("png-bytes"), svc.got.Data)
}

func TestPredict_RejectsNonImage(t *testing.T) {
	svc := &fakeService{}

	resp, err := newTestApp(svc).Test(multipartRequest(t, "file", "notes.txt", "text/plain", []byte("hello")))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	require.JSONEq(t, `{"detail":"File must be an image"}`, readBody(t, resp))
	require.Nil(t, svc.got)
}

func TestPredict_MissingFile(t *testing.T) {
	resp, err := newTestApp(&fakeService{}).Test(multipartRequest(t, "image", "cat.png", "image/png", []byte("x")))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	require.JSONEq(t, `{"detail":"No file uploaded"}`, readBody(t, resp))
}

func TestPredict_ServiceErrors(t *testing.T) {
	resp, err := newTestApp(&fakeService{err: predict.ErrModelsUnavailable}).
		Test(multipartRequest(t, "file", "cat.png", "image/png", []byte("x")))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	require.JSONEq(t, `{"detail":"Models not loaded"}`, readBody(t, resp))

	resp, err = newTestApp(&fakeService{err: errors.New("boom")}).
		Test(multipartRequest(t, "file", "cat.png", "image/png", []byte("x")))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	require.JSONEq(t, `{"detail":"Error processing image: boom"}`, readBody(t, resp))
}

func TestPredict_ModelsCheckedBeforeContentType(t *testing.T) {
	svc := &fakeService{modelsDown: true}

	resp, err := newTestApp(svc).Test(multipartRequest(t, "file", "notes.txt", "text/plain", []byte("hello")))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	require.JSONEq(t, `{"detail":"Models not loaded"}`, readBody(t, resp))
	require.Nil(t, svc.got)
}

func TestPredict_RequestDeadline(t *testing.T) {
	svc := &fakeService{untilExpiry: true}

	resp, err := newTestAppWithTimeout(svc, 50*time.Millisecond).
		Test(multipartRequest(t, "file", "cat.png", "image/png", []byte("x")), 5000)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusRequestTimeout, resp.StatusCode)
	require.JSONEq(t, `{"detail":"Request Timeout"}`, readBody(t, resp))
}

func TestGetResult(t *testing.T) {
	id := "8f14e45f-ceea-4e7a-9b1c-6d2a0f1e2b3c"
	svc := &fakeService{cached: map[string]*entity.PipelineResult{
		id: {Status: "success", RequestID: id, Results: []entity.DetectionResult{}},
	}}
	app := newTestApp(svc)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/predict/"+id, nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/predict/6fa459ea-ee8a-4ca4-894e-db77e160355e", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	require.JSONEq(t, `{"detail":"Result not found"}`, readBody(t, resp))

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/predict/not-a-uuid", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	resp, err := newTestApp(&fakeService{}).Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{
		"status": "healthy",
		"segmentation_model_loaded": true,
		"classification_model_loaded": false,
		"model_file_check": {
			"segmentation_model_file_exists": false,
			"classification_model_file_exists": false,
			"segmentation_model_path": "",
			"classification_model_path": "",
			"current_directory": ""
		}
	}`, readBody(t, resp))
}
