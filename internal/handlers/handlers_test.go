package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/image-classifier/internal/classifier"
	"github.com/Brownie44l1/image-classifier/internal/model"
)

type stubEngine struct {
	mu     sync.Mutex
	output model.Output
	err    error
	calls  int
}

func (s *stubEngine) Infer(input *model.Tensor) (model.Output, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.output, nil
}

func (s *stubEngine) Close() error { return nil }

func newServer(t *testing.T, engine model.Engine, labels classifier.Labels, cacheSize int) http.Handler {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	h, err := NewHandler(classifier.New(engine, labels), Options{
		CacheSize: cacheSize,
		Logger:    logger,
	})
	require.NoError(t, err)
	return NewRouter(h)
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 32, 24))
	img.Set(3, 4, color.NRGBA{R: 200, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func uploadRequest(t *testing.T, field string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(field, "upload.png")
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/predict/image", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestHealth(t *testing.T) {
	srv := newServer(t, &stubEngine{}, classifier.Labels{"cat", "dog"}, 0)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var body map[string]interface{}
	decodeBody(t, rec, &body)
	require.Equal(t, "healthy", body["status"])
	require.Equal(t, float64(2), body["classes"])
}

func TestPredictFromImage(t *testing.T) {
	engine := &stubEngine{output: model.Output{0.2, 0.8}}
	srv := newServer(t, engine, classifier.Labels{"cat", "dog"}, 0)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, uploadRequest(t, "image", pngBytes(t)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp model.PredictionResponse
	decodeBody(t, rec, &resp)
	require.Equal(t, "dog", resp.Class)
	require.Equal(t, 1, resp.Index)
	require.Equal(t, float32(0.8), resp.Confidence)
	require.Equal(t, []model.Prediction{{Label: "dog", Score: 0.8}, {Label: "cat", Score: 0.2}}, resp.Predictions)
}

func TestPredictFromImageCache(t *testing.T) {
	engine := &stubEngine{output: model.Output{0.9, 0.1}}
	srv := newServer(t, engine, classifier.Labels{"cat", "dog"}, 4)
	data := pngBytes(t)

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, uploadRequest(t, "image", data))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	require.Equal(t, 1, engine.calls)
}

func TestPredictFromImageErrors(t *testing.T) {
	labels := classifier.Labels{"cat", "dog", "bird"}
	cases := []struct {
		name   string
		engine *stubEngine
		req    func(*testing.T) *http.Request
		status int
		kind   string
	}{
		{
			name:   "missing field",
			engine: &stubEngine{output: model.Output{1}},
			req:    func(t *testing.T) *http.Request { return uploadRequest(t, "photo", pngBytes(t)) },
			status: http.StatusBadRequest,
		},
		{
			name:   "not an image",
			engine: &stubEngine{output: model.Output{1}},
			req:    func(t *testing.T) *http.Request { return uploadRequest(t, "image", []byte("plain text")) },
			status: http.StatusBadRequest,
			kind:   model.KindImageDecode,
		},
		{
			name:   "engine failure",
			engine: &stubEngine{err: &model.InferenceError{Err: errors.New("shape mismatch")}},
			req:    func(t *testing.T) *http.Request { return uploadRequest(t, "image", pngBytes(t)) },
			status: http.StatusBadGateway,
			kind:   model.KindInference,
		},
		{
			name:   "label mismatch",
			engine: &stubEngine{output: model.Output{0, 0, 0, 0, 1}},
			req:    func(t *testing.T) *http.Request { return uploadRequest(t, "image", pngBytes(t)) },
			status: http.StatusInternalServerError,
			kind:   model.KindIndexOutOfRange,
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			srv := newServer(t, c.engine, labels, 0)
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, c.req(t))
			require.Equal(t, c.status, rec.Code)

			var body errorResponse
			decodeBody(t, rec, &body)
			require.NotEmpty(t, body.Error)
			require.Equal(t, c.kind, body.Kind)
		})
	}
}

func TestPredictRawTensor(t *testing.T) {
	engine := &stubEngine{output: model.Output{0.1, 0.9, 0.3}}
	srv := newServer(t, engine, classifier.Labels{"cat", "dog", "bird"}, 0)

	payload, err := json.Marshal(model.PredictionRequest{Image: make([]float32, model.InputShape.NumElements())})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/predict", bytes.NewReader(payload)))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp model.PredictionResponse
	decodeBody(t, rec, &resp)
	require.Equal(t, "dog", resp.Class)
}

func TestPredictNaNScoreIgnored(t *testing.T) {
	nan := float32(math.NaN())
	engine := &stubEngine{output: model.Output{nan, 0.1, 0.9}}
	srv := newServer(t, engine, classifier.Labels{"cat", "dog", "bird"}, 0)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, uploadRequest(t, "image", pngBytes(t)))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp model.PredictionResponse
	decodeBody(t, rec, &resp)
	require.Equal(t, "bird", resp.Class)
	require.Equal(t, float32(0.9), resp.Confidence)
	require.Len(t, resp.Predictions, 2)

	engine.output = model.Output{nan, nan, nan}
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, uploadRequest(t, "image", pngBytes(t)))
	require.Equal(t, http.StatusBadGateway, rec.Code)

	var body errorResponse
	decodeBody(t, rec, &body)
	require.Equal(t, model.KindInference, body.Kind)
}

func TestPredictRawTensorWrongSize(t *testing.T) {
	srv := newServer(t, &stubEngine{output: model.Output{1}}, classifier.Labels{"a"}, 0)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/predict", bytes.NewReader([]byte(`{"image":[0.5,0.5]}`))))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "Expected 150528 values, got 2")

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/predict", bytes.NewReader([]byte(`{`))))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newServer(t, &stubEngine{}, classifier.Labels{"a"}, 0)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/predict", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	srv := newServer(t, &stubEngine{}, classifier.Labels{"a"}, 0)

	req := httptest.NewRequest(http.MethodOptions, "/predict/image", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestStatusFor(t *testing.T) {
	require.Equal(t, http.StatusBadRequest, StatusFor(&model.ImageDecodeError{Err: errors.New("x")}))
	require.Equal(t, http.StatusServiceUnavailable, StatusFor(&model.ModelLoadError{Err: errors.New("x")}))
	require.Equal(t, http.StatusBadGateway, StatusFor(&model.InferenceError{Err: errors.New("x")}))
	require.Equal(t, http.StatusInternalServerError, StatusFor(&model.IndexOutOfRangeError{}))
	require.Equal(t, http.StatusInternalServerError, StatusFor(errors.New("x")))
}
