package handlers

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	lru "github.com/hashicorp/golang-lru"
	"github.com/sirupsen/logrus"

	"github.com/Brownie44l1/image-classifier/internal/classifier"
	"github.com/Brownie44l1/image-classifier/internal/model"
)

// topPredictions is how many ranked labels a prediction response carries.
const topPredictions = 5

type Handler struct {
	classifier *classifier.Classifier
	cache      *lru.Cache
	maxUpload  int64
	log        logrus.FieldLogger
}

type Options struct {
	// CacheSize bounds the upload result cache; 0 disables it.
	CacheSize      int
	MaxUploadBytes int64
	Logger         logrus.FieldLogger
}

func NewHandler(c *classifier.Classifier, opts Options) (*Handler, error) {
	h := &Handler{
		classifier: c,
		maxUpload:  opts.MaxUploadBytes,
		log:        opts.Logger,
	}
	if h.maxUpload <= 0 {
		h.maxUpload = 10 << 20
	}
	if h.log == nil {
		h.log = logrus.StandardLogger()
	}
	if opts.CacheSize > 0 {
		cache, err := lru.New(opts.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create result cache: %w", err)
		}
		h.cache = cache
	}
	return h, nil
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"classes": len(h.classifier.Labels()),
	})
}

// Predict classifies a tensor that the client already preprocessed.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxUpload))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read request body", "")
		return
	}

	var req model.PredictionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", "")
		return
	}

	expectedSize := model.InputShape.NumElements()
	if len(req.Image) != expectedSize {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("Expected %d values, got %d", expectedSize, len(req.Image)), "")
		return
	}

	t := &model.Tensor{Shape: append(model.Shape(nil), model.InputShape...), Data: req.Image}
	result, err := h.classifier.ClassifyTensor(t)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, result)
}

// PredictFromImage classifies the multipart upload in the "image" field.
func (h *Handler) PredictFromImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		writeError(w, http.StatusBadRequest, "Failed to parse form", "")
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No image file provided. Use 'image' as the form field name", "")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read image", "")
		return
	}
	entry(h.log, r).WithFields(logrus.Fields{
		"file": header.Filename,
		"size": header.Size,
	}).Debug("Received upload")

	key := digest(data)
	if h.cache != nil {
		if v, ok := h.cache.Get(key); ok {
			entry(h.log, r).WithField("digest", key).Debug("Served from cache")
			h.respond(w, r, v.(*classifier.Result))
			return
		}
	}

	result, err := h.classifier.ClassifyReader(bytes.NewReader(data))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if h.cache != nil {
		h.cache.Add(key, result)
	}
	h.respond(w, r, result)
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, result *classifier.Result) {
	top, err := result.Top(h.classifier.Labels(), topPredictions)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, &model.PredictionResponse{
		Class:       result.Label,
		Index:       result.Index,
		Confidence:  result.Score,
		Predictions: top,
	})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	kind := model.KindOf(err)
	status := StatusFor(err)
	fields := logrus.Fields{"kind": kind, "status": status}
	if status >= http.StatusInternalServerError {
		entry(h.log, r).WithFields(fields).WithError(err).Error("Prediction failed")
	} else {
		entry(h.log, r).WithFields(fields).WithError(err).Info("Prediction rejected")
	}

	msg := "Prediction failed"
	if kind == model.KindImageDecode {
		msg = "Invalid image format. Supported: JPEG, PNG, GIF, BMP, TIFF, WebP"
	}
	writeError(w, status, msg, kind)
}

// StatusFor maps each error kind to its own HTTP status.
func StatusFor(err error) int {
	switch model.KindOf(err) {
	case model.KindImageDecode:
		return http.StatusBadRequest
	case model.KindModelLoad:
		return http.StatusServiceUnavailable
	case model.KindInference:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg, kind string) {
	writeJSON(w, status, errorResponse{Error: msg, Kind: kind})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
