package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/Tutortoise/vision-inference/chain"
	"github.com/Tutortoise/vision-inference/models"

	"github.com/disintegration/imaging"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	_ "golang.org/x/image/webp"
)

const maxUploadSize = 10 << 20

type AppState struct {
	Pools    map[string]*WorkerPool
	Registry *chain.Registry
	Logger   *zap.Logger
}

type KeypointResult struct {
	Name       string  `json:"name"`
	X          float32 `json:"x"`
	Y          float32 `json:"y"`
	Confidence float32 `json:"confidence"`
}

type PoseResponse struct {
	Detected  bool             `json:"detected"`
	Keypoints []KeypointResult `json:"keypoints"`
	Skeleton  [][2]string      `json:"skeleton"`
	Message   string           `json:"message"`
}

type LandmarkResult struct {
	Name string  `json:"name"`
	X    float32 `json:"x"`
	Y    float32 `json:"y"`
}

type FaceResult struct {
	BBox       models.Rect      `json:"bbox"`
	Landmarks  []LandmarkResult `json:"landmarks"`
	Confidence float32          `json:"confidence"`
}

type FaceResponse struct {
	FaceCount int          `json:"face_count"`
	Faces     []FaceResult `json:"faces"`
	Message   string       `json:"message"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func newRouter(state *AppState) *mux.Router {
	r := mux.NewRouter()
	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/pose", state.handleDetect(KindPose, poseResult)).Methods("POST")
	v1.HandleFunc("/faces", state.handleDetect(KindFace, faceResult)).Methods("POST")
	v1.HandleFunc("/operators", state.handleOperators).Methods("GET")
	state.addMonitoringRoutes(r)
	return r
}

// handleDetect decodes the uploaded image, runs it through a pooled worker of
// the given kind and writes whatever result builds from the worker.
func (s *AppState) handleDetect(kind string, result func(*Worker) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTotal := time.Now()
		requestID := strconv.FormatInt(time.Now().UnixNano(), 10)
		logger := s.Logger.With(zap.String("request_id", requestID), zap.String("kind", kind))

		pool, ok := s.Pools[kind]
		if !ok {
			sendErrorResponse(w, "model_unavailable", "no "+kind+" model configured", http.StatusServiceUnavailable)
			return
		}

		imgBytes, err := readImageBytes(r)
		if err != nil {
			sendErrorResponse(w, "invalid_request", err.Error(), http.StatusBadRequest)
			return
		}

		decodeStart := time.Now()
		img, err := decodeImage(imgBytes)
		decodeTime := time.Since(decodeStart)
		if err != nil {
			sendErrorResponse(w, "invalid_image", "Failed to decode image", http.StatusBadRequest)
			return
		}

		worker, err := pool.Acquire(r.Context())
		if err != nil {
			sendErrorResponse(w, "worker_unavailable", err.Error(), http.StatusServiceUnavailable)
			return
		}
		defer pool.Release(worker)

		if err := worker.Run(img); err != nil {
			logger.Warn("detection failed", zap.Error(err))
			sendErrorResponse(w, "processing_error", err.Error(), http.StatusInternalServerError)
			return
		}

		body, err := result(worker)
		if err != nil {
			sendErrorResponse(w, "processing_error", err.Error(), http.StatusInternalServerError)
			return
		}

		timings := worker.Timings()
		timings.Total = time.Since(startTotal)
		logger.Debug("request processed",
			zap.Duration("decode", decodeTime),
			zap.Duration("acquire", timings.Acquire),
			zap.Duration("preprocess", timings.Preprocess),
			zap.Duration("inference", timings.Inference),
			zap.Duration("postprocess", timings.Decode),
			zap.Duration("total", timings.Total))

		writeJSON(w, http.StatusOK, body)
	}
}

func poseResult(w *Worker) (any, error) {
	d, ok := w.Pose()
	if !ok {
		return nil, errors.New("worker has no pose detector")
	}
	kps := d.Keypoints()
	resp := PoseResponse{
		Detected:  d.Detected(),
		Keypoints: make([]KeypointResult, 0, len(kps)),
		Skeleton:  [][2]string{},
		Message:   poseMessage(d.Detected()),
	}
	for i, k := range kps {
		resp.Keypoints = append(resp.Keypoints, KeypointResult{
			Name:       models.Keypoint(i).String(),
			X:          k.X,
			Y:          k.Y,
			Confidence: k.Confidence,
		})
	}
	if d.DrawSkeleton() {
		for _, b := range d.Skeleton() {
			resp.Skeleton = append(resp.Skeleton, [2]string{b.From.String(), b.To.String()})
		}
	}
	return resp, nil
}

func faceResult(w *Worker) (any, error) {
	d, ok := w.Face()
	if !ok {
		return nil, errors.New("worker has no face detector")
	}
	faces := d.Faces()
	resp := FaceResponse{
		FaceCount: len(faces),
		Faces:     make([]FaceResult, 0, len(faces)),
		Message:   faceMessage(len(faces)),
	}
	for _, f := range faces {
		fr := FaceResult{BBox: f.BBox, Confidence: f.Confidence}
		for i, p := range f.Landmarks {
			fr.Landmarks = append(fr.Landmarks, LandmarkResult{
				Name: models.FaceLandmark(i).String(),
				X:    p.X,
				Y:    p.Y,
			})
		}
		resp.Faces = append(resp.Faces, fr)
	}
	return resp, nil
}

func (s *AppState) handleOperators(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Registry.List())
}

func (s *AppState) addMonitoringRoutes(r *mux.Router) {
	r.HandleFunc("/metrics", s.handleMetrics).Methods("GET")
}

func (s *AppState) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	response := make(map[string]PoolStats, len(s.Pools))
	for kind, pool := range s.Pools {
		response[kind] = pool.GetMetrics()
	}
	writeJSON(w, http.StatusOK, response)
}

// readImageBytes accepts a JSON body with a base64 "image", a multipart
// upload in the "file" field, or the raw image as the body.
func readImageBytes(r *http.Request) ([]byte, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		return handleJSONRequest(r)
	case "multipart/form-data":
		return handleMultipartRequest(r)
	default:
		return handleRawRequest(r)
	}
}

func handleJSONRequest(r *http.Request) ([]byte, error) {
	var req struct {
		Image string `json:"image"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUploadSize)).Decode(&req); err != nil {
		return nil, errors.Wrap(err, "decode request")
	}
	if req.Image == "" {
		return nil, errors.New("image field is empty")
	}
	return base64.StdEncoding.DecodeString(req.Image)
}

func handleMultipartRequest(r *http.Request) ([]byte, error) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		return nil, err
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return io.ReadAll(file)
}

func handleRawRequest(r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxUploadSize))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("request body is empty")
	}
	return data, nil
}

func decodeImage(data []byte) (image.Image, error) {
	return imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func sendErrorResponse(w http.ResponseWriter, code, message string, status int) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}
