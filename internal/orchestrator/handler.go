package orchestrator

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"live-packager/internal/packager"
	"live-packager/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
)

const (
	playlistContentType = "application/vnd.apple.mpegurl"
	mp4ContentType      = "video/mp4"
	tsContentType       = "video/mp2t"

	// DefaultMaxUploadBytes caps init and media request bodies.
	DefaultMaxUploadBytes = 64 << 20
)

// Handler exposes the packaging service over HTTP using go-chi.
type Handler struct {
	svc       *Service
	log       *slog.Logger
	metrics   *metrics.Metrics
	maxUpload int64
}

// NewHandler returns a Handler that uses the given Service, Logger, and optional Metrics.
// Metrics may be nil to disable metric recording (e.g. in tests).
func NewHandler(svc *Service, log *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{svc: svc, log: log, metrics: m, maxUpload: DefaultMaxUploadBytes}
}

// SetMaxUploadBytes changes the request body limit. n <= 0 is ignored.
func (h *Handler) SetMaxUploadBytes(n int64) {
	if n > 0 {
		h.maxUpload = n
	}
}

// Routes registers the stream endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/streams/{stream_id}", func(r chi.Router) {
		r.Delete("/", h.DeleteStream)
		r.Post("/end", h.EndStream)
		r.Route("/renditions/{rendition}", func(r chi.Router) {
			r.Put("/init", h.SetInit)
			r.Post("/segments", h.IngestSegment)
			r.Get("/segments/{name}", h.GetSegment)
			r.Get("/"+initSegmentURI, h.GetInit)
			r.Get("/playlist.m3u8", h.GetPlaylist)
		})
	})
}

func routeIDs(r *http.Request) (StreamID, RenditionID) {
	return StreamID(chi.URLParam(r, "stream_id")), RenditionID(chi.URLParam(r, "rendition"))
}

// SetInit handles PUT /streams/{stream_id}/renditions/{rendition}/init.
// The body is the input init segment. Optional query parameters format,
// track and duration override the service defaults for a new rendition.
func (h *Handler) SetInit(w http.ResponseWriter, r *http.Request) {
	streamID, renditionID := routeIDs(r)
	if streamID == "" || renditionID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	cfg, err := h.renditionConfig(r)
	if err != nil {
		h.log.Debug("invalid rendition overrides", slog.String("error", err.Error()))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	if err := h.svc.SetInit(streamID, renditionID, cfg, body); err != nil {
		h.writeError(w, r, "set init failed", err)
		return
	}

	h.log.Debug("init segment stored",
		slog.String("stream_id", string(streamID)),
		slog.String("rendition", string(renditionID)),
		slog.Int("size", len(body)))
	w.WriteHeader(http.StatusNoContent)
}

// IngestSegment handles POST /streams/{stream_id}/renditions/{rendition}/segments.
// The body is one fragmented MP4 media segment; the response is the packaged
// segment's metadata.
func (h *Handler) IngestSegment(w http.ResponseWriter, r *http.Request) {
	streamID, renditionID := routeIDs(r)
	if streamID == "" || renditionID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	seg, err := h.svc.Ingest(r.Context(), streamID, renditionID, body)
	if err != nil {
		h.writeError(w, r, "ingest failed", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Location", "segments/"+seg.Path)
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(seg)
}

// GetSegment handles GET /streams/{stream_id}/renditions/{rendition}/segments/{name}.
func (h *Handler) GetSegment(w http.ResponseWriter, r *http.Request) {
	streamID, renditionID := routeIDs(r)
	name := chi.URLParam(r, "name")

	seg, err := h.svc.GetSegment(streamID, renditionID, name)
	if err != nil {
		h.writeError(w, r, "get segment failed", err)
		return
	}

	ct := mp4ContentType
	if strings.HasSuffix(name, packager.FormatTS.Extension()) {
		ct = tsContentType
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Length", strconv.Itoa(len(seg.Data)))
	w.WriteHeader(http.StatusOK)
	w.Write(seg.Data)
}

// GetInit handles GET /streams/{stream_id}/renditions/{rendition}/init.mp4.
func (h *Handler) GetInit(w http.ResponseWriter, r *http.Request) {
	streamID, renditionID := routeIDs(r)

	init, err := h.svc.GetInit(streamID, renditionID)
	if errors.Is(err, ErrNoInitSegment) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		h.writeError(w, r, "get init failed", err)
		return
	}

	w.Header().Set("Content-Type", mp4ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(init)))
	w.WriteHeader(http.StatusOK)
	w.Write(init)
}

// GetPlaylist handles GET /streams/{stream_id}/renditions/{rendition}/playlist.m3u8.
func (h *Handler) GetPlaylist(w http.ResponseWriter, r *http.Request) {
	streamID, renditionID := routeIDs(r)
	if streamID == "" || renditionID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	m3u8, ok := h.svc.GetPlaylist(streamID, renditionID)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", playlistContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(m3u8))
}

// EndStream handles POST /streams/{stream_id}/end.
func (h *Handler) EndStream(w http.ResponseWriter, r *http.Request) {
	streamID := StreamID(chi.URLParam(r, "stream_id"))
	if streamID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if err := h.svc.EndStream(streamID); err != nil {
		h.log.Error("end stream failed", slog.String("stream_id", string(streamID)), slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	h.log.Info("stream ended", slog.String("stream_id", string(streamID)))
	w.WriteHeader(http.StatusOK)
	if h.metrics != nil {
		h.metrics.IncStreamsEnded()
	}
}

// DeleteStream handles DELETE /streams/{stream_id}.
func (h *Handler) DeleteStream(w http.ResponseWriter, r *http.Request) {
	streamID := StreamID(chi.URLParam(r, "stream_id"))
	if !h.svc.DeleteStream(streamID) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	h.log.Info("stream deleted", slog.String("stream_id", string(streamID)))
	w.WriteHeader(http.StatusNoContent)
}

// renditionConfig applies the request's query overrides to the service defaults.
func (h *Handler) renditionConfig(r *http.Request) (packager.LiveConfig, error) {
	cfg := h.svc.Defaults()
	q := r.URL.Query()

	if v := q.Get("format"); v != "" {
		f, err := packager.ParseOutputFormat(v)
		if err != nil {
			return cfg, err
		}
		cfg.Format = f
	}
	if v := q.Get("track"); v != "" {
		t, err := packager.ParseTrackType(v)
		if err != nil {
			return cfg, err
		}
		cfg.TrackType = t
	}
	if v := q.Get("duration"); v != "" {
		d, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return cfg, err
		}
		cfg.SegmentDurationSec = d
	}
	return cfg, nil
}

// readBody reads the whole request body within the upload limit. It writes
// the error response itself and reports false on failure.
func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxUpload))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return nil, false
		}
		h.log.Debug("read body failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return nil, false
	}
	return body, true
}

// writeError maps service and packaging errors to HTTP status codes.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	streamID, renditionID := routeIDs(r)
	attrs := []any{
		slog.String("stream_id", string(streamID)),
		slog.String("rendition", string(renditionID)),
		slog.String("error", err.Error()),
	}

	var status int
	switch {
	case errors.Is(err, ErrStreamEnded), errors.Is(err, ErrRenditionEnded):
		status = http.StatusConflict
		h.log.Info(msg+": stream or rendition ended", attrs...)
	case errors.Is(err, packager.ErrInvalidInput), errors.Is(err, ErrInvalidConfig), errors.Is(err, ErrNoInitSegment):
		status = http.StatusBadRequest
		h.log.Debug(msg, attrs...)
	case errors.Is(err, packager.ErrInitialize), errors.Is(err, packager.ErrRun):
		status = http.StatusUnprocessableEntity
		h.log.Warn(msg, attrs...)
	case errors.Is(err, ErrRenditionNotFound), errors.Is(err, ErrSegmentNotFound):
		status = http.StatusNotFound
	default:
		status = http.StatusInternalServerError
		h.log.Error(msg, attrs...)
	}

	if status == http.StatusNotFound {
		w.WriteHeader(status)
		return
	}
	http.Error(w, err.Error(), status)
}
