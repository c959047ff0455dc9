// Package httpapi exposes a narration [Engine] over HTTP.
//
// Routes:
//
//	PUT  /v1/voices      replace the voice configuration (JSON array)
//	GET  /v1/voices      active configuration, partitioned by scope
//	POST /v1/plan        preview the voiced segments of a story
//	POST /v1/synthesize  voice a story and return audio/mpeg
//
// Story text is accepted either as a JSON object {"text": "..."} or, for any
// other content type, as the raw request body.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/MrWong99/storyvoice/internal/assemble"
	"github.com/MrWong99/storyvoice/internal/observe"
	"github.com/MrWong99/storyvoice/internal/voice"
	"github.com/MrWong99/storyvoice/pkg/types"
)

// DefaultMaxBodyBytes bounds request bodies unless overridden with
// [WithMaxBodyBytes].
const DefaultMaxBodyBytes = 4 << 20

// Response headers set by the synthesize endpoint.
const (
	HeaderSegments    = "X-Segments"
	HeaderSynthesized = "X-Segments-Synthesized"
	HeaderFailed      = "X-Segments-Failed"
	HeaderSkipped     = "X-Segments-Skipped"
	HeaderTruncated   = "X-Truncated"
	HeaderDurationMS  = "X-Audio-Duration-Ms"
)

// Engine is the narration surface served by [Handler]. *narrator.Engine
// satisfies it.
type Engine interface {
	UpdateConfig(payload string) error
	Voices() *voice.ConfigSet
	Plan(text string) []types.AssignedSegment
	SynthesizeReport(ctx context.Context, text string) ([]byte, assemble.Report)
}

// Handler serves the narration API. It is safe for concurrent use.
type Handler struct {
	engine  Engine
	maxBody int64
}

// Option configures a [Handler].
type Option func(*Handler)

// WithMaxBodyBytes overrides [DefaultMaxBodyBytes].
func WithMaxBodyBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxBody = n
		}
	}
}

// New creates a [Handler] for engine.
func New(engine Engine, opts ...Option) *Handler {
	h := &Handler{engine: engine, maxBody: DefaultMaxBodyBytes}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Register adds the API routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("PUT /v1/voices", h.PutVoices)
	mux.HandleFunc("GET /v1/voices", h.GetVoices)
	mux.HandleFunc("POST /v1/plan", h.Plan)
	mux.HandleFunc("POST /v1/synthesize", h.Synthesize)
}

// errorResponse is the JSON body of every error reply.
type errorResponse struct {
	Error string `json:"error"`
}

// textRequest is the JSON form of a story request.
type textRequest struct {
	Text string `json:"text"`
}

// voicesResponse is returned by GET /v1/voices.
type voicesResponse struct {
	Enabled int              `json:"enabled"`
	Voices  *voice.ConfigSet `json:"voices"`
}

// planResponse is returned by POST /v1/plan.
type planResponse struct {
	Segments []types.AssignedSegment `json:"segments"`
}

// PutVoices handles PUT /v1/voices. An invalid payload yields 400 and leaves
// the active configuration untouched.
func (h *Handler) PutVoices(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	if err := h.engine.UpdateConfig(string(body)); err != nil {
		if errors.Is(err, voice.ErrInvalidConfig) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "update voices: "+err.Error())
		return
	}
	h.GetVoices(w, r)
}

// GetVoices handles GET /v1/voices.
func (h *Handler) GetVoices(w http.ResponseWriter, _ *http.Request) {
	set := h.engine.Voices()
	if set == nil {
		set = voice.NewConfigSet(nil)
	}
	writeJSON(w, http.StatusOK, voicesResponse{Enabled: set.Enabled(), Voices: set})
}

// Plan handles POST /v1/plan. The rotation is not advanced.
func (h *Handler) Plan(w http.ResponseWriter, r *http.Request) {
	text, ok := h.readText(w, r)
	if !ok {
		return
	}
	segs := h.engine.Plan(text)
	if segs == nil {
		segs = []types.AssignedSegment{}
	}
	writeJSON(w, http.StatusOK, planResponse{Segments: segs})
}

// Synthesize handles POST /v1/synthesize. It answers 200 with audio/mpeg, or
// 204 No Content when no segment produced audio.
func (h *Handler) Synthesize(w http.ResponseWriter, r *http.Request) {
	text, ok := h.readText(w, r)
	if !ok {
		return
	}

	audio, rep := h.engine.SynthesizeReport(r.Context(), text)

	hdr := w.Header()
	hdr.Set(HeaderSegments, strconv.Itoa(rep.Segments))
	hdr.Set(HeaderSynthesized, strconv.Itoa(rep.Synthesized))
	hdr.Set(HeaderFailed, strconv.Itoa(rep.Failed))
	hdr.Set(HeaderSkipped, strconv.Itoa(rep.Skipped))
	hdr.Set(HeaderTruncated, strconv.FormatBool(rep.Truncated))

	if len(audio) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if rep.Duration > 0 {
		hdr.Set(HeaderDurationMS, strconv.FormatInt(rep.Duration.Milliseconds(), 10))
	}
	hdr.Set("Content-Type", "audio/mpeg")
	hdr.Set("Content-Length", strconv.Itoa(len(audio)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(audio); err != nil {
		observe.Logger(r.Context()).Warn("write audio response", "err", err)
	}
}

// readBody reads the size-limited request body. On failure it writes the
// error reply and returns false.
func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "read request body: "+err.Error())
		return nil, false
	}
	return body, true
}

// readText extracts the story from a JSON or raw body. Blank text is
// rejected with 400.
func (h *Handler) readText(w http.ResponseWriter, r *http.Request) (string, bool) {
	body, ok := h.readBody(w, r)
	if !ok {
		return "", false
	}
	text := string(body)
	if isJSON(r.Header.Get("Content-Type")) {
		var req textRequest
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return "", false
		}
		text = req.Text
	}
	if strings.TrimSpace(text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return "", false
	}
	return text, true
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && mt == "application/json"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
