package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/local/docgate/internal/docerr"
	"github.com/local/docgate/internal/filetype"
	"github.com/local/docgate/internal/gate"
	"github.com/local/docgate/internal/pipeline"
	"github.com/local/docgate/internal/queue"
	"github.com/local/docgate/internal/statuscheck"
	"github.com/local/docgate/internal/store"
)

type Queue interface {
	Enqueue(ctx context.Context, job queue.Job) error
	CancelJob(ctx context.Context, jobID string) error
}

type StatusStore interface {
	Set(ctx context.Context, jobID string, st store.Status) error
	Get(ctx context.Context, jobID string) (store.Status, bool, error)
}

type Classifier interface {
	Classify(ctx context.Context, path string) (gate.Verdict, error)
}

type Extractor interface {
	Run(ctx context.Context, path string) (pipeline.Outcome, error)
}

type Resolver interface {
	Resolve(ctx context.Context, ref string) (string, func(), error)
}

type PageCounter interface {
	PageCount(pdfPath string) (int, error)
}

type HealthChecker interface {
	Summary(ctx context.Context) statuscheck.Summary
}

// Dependencies wires the HTTP surface. Gate and Resolver are required; the
// rest switch their endpoints off (503) when nil.
type Dependencies struct {
	Gate           Classifier
	Resolver       Resolver
	Extractor      Extractor
	Pages          PageCounter
	Queue          Queue
	Status         StatusStore
	Checker        HealthChecker
	Metrics        http.Handler
	UploadDir      string
	MaxUploadBytes int64
	RequestTimeout time.Duration
}

type Orchestrator struct {
	deps Dependencies
}

func New(deps Dependencies) *Orchestrator {
	if deps.UploadDir == "" {
		deps.UploadDir = filepath.Join(os.TempDir(), "docgate-uploads")
	}
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = 50 << 20
	}
	if deps.RequestTimeout <= 0 {
		deps.RequestTimeout = 2 * time.Minute
	}
	return &Orchestrator{deps: deps}
}

func (o *Orchestrator) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/classify", o.handleClassify)
	mux.HandleFunc("/classify_upload", o.handleClassifyUpload)
	mux.HandleFunc("/extract", o.handleExtract)
	mux.HandleFunc("/jobs", o.handleSubmitJob)
	mux.HandleFunc("/jobs/", o.handleJobStatus)
	mux.HandleFunc("/jobs/cancel", o.handleCancelJob)
	mux.HandleFunc("/status", o.handleStatus)
	if o.deps.Metrics != nil {
		mux.Handle("/metrics", o.deps.Metrics)
	}
}

type documentReq struct {
	FilePath string `json:"file_path"`
	FileURL  string `json:"file_url"`
	Extract  bool   `json:"extract"`
}

func (r documentReq) ref() string {
	if r.FilePath != "" {
		return r.FilePath
	}
	return r.FileURL
}

type classifyResp struct {
	Success    bool          `json:"success"`
	Legible    bool          `json:"legible"`
	Verdict    *gate.Verdict `json:"verdict,omitempty"`
	TotalPages int           `json:"total_pages,omitempty"`
	Extracted  bool          `json:"extracted,omitempty"`
	Text       string        `json:"text,omitempty"`
	Message    string        `json:"message,omitempty"`
	ErrorCode  string        `json:"error_code,omitempty"`
}

type jobResp struct {
	Status  string        `json:"status"`
	JobID   string        `json:"job_id"`
	Message string        `json:"message,omitempty"`
	Job     *store.Status `json:"job,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeGateError maps gate failures onto status codes and stable error codes.
func writeGateError(w http.ResponseWriter, err error) {
	code := docerr.CodeOf(err)
	writeJSON(w, docerr.HTTPStatus(err), classifyResp{
		Success:   false,
		Message:   docerr.UserMessage(err),
		ErrorCode: string(code),
	})
}

func decodeDocumentReq(w http.ResponseWriter, r *http.Request) (documentReq, bool) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed); return documentReq{}, false
	}
	defer r.Body.Close()
	var req documentReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest); return req, false
	}
	if req.ref() == "" {
		http.Error(w, "missing file_path/file_url", http.StatusBadRequest); return req, false
	}
	return req, true
}

func (o *Orchestrator) handleClassify(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeDocumentReq(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), o.deps.RequestTimeout)
	defer cancel()

	path, cleanup, err := o.deps.Resolver.Resolve(ctx, req.ref())
	if err != nil {
		log.Warn().Err(err).Str("ref", req.ref()).Msg("resolve failed")
		http.Error(w, "cannot fetch document", http.StatusBadGateway); return
	}
	defer cleanup()
	o.classifyLocal(ctx, w, path, false)
}

func (o *Orchestrator) handleExtract(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeDocumentReq(w, r)
	if !ok {
		return
	}
	if o.deps.Extractor == nil {
		http.Error(w, "ocr not configured", http.StatusServiceUnavailable); return
	}
	ctx, cancel := context.WithTimeout(r.Context(), o.deps.RequestTimeout)
	defer cancel()

	path, cleanup, err := o.deps.Resolver.Resolve(ctx, req.ref())
	if err != nil {
		log.Warn().Err(err).Str("ref", req.ref()).Msg("resolve failed")
		http.Error(w, "cannot fetch document", http.StatusBadGateway); return
	}
	defer cleanup()
	o.classifyLocal(ctx, w, path, true)
}

// classifyLocal runs the gate (and OCR when extract is set) on a local file
// and writes the response.
func (o *Orchestrator) classifyLocal(ctx context.Context, w http.ResponseWriter, path string, extract bool) {
	var resp classifyResp
	if extract {
		out, err := o.deps.Extractor.Run(ctx, path)
		if err != nil && out.Verdict.Kind == "" {
			writeGateError(w, err); return
		}
		if err != nil {
			log.Error().Err(err).Str("file", path).Msg("ocr failed")
			http.Error(w, "text extraction failed", http.StatusInternalServerError); return
		}
		resp = classifyResp{Verdict: &out.Verdict, Extracted: out.Extracted, Text: out.Text, Message: out.Message}
	} else {
		v, err := o.deps.Gate.Classify(ctx, path)
		if err != nil {
			writeGateError(w, err); return
		}
		resp = classifyResp{Verdict: &v}
		if !v.Legible() {
			resp.Message = pipeline.MessageNotClear
		}
	}
	resp.Success = true
	resp.Legible = resp.Verdict.Legible()
	if resp.Verdict.Kind == filetype.KindPDF.String() && o.deps.Pages != nil {
		if n, err := o.deps.Pages.PageCount(path); err == nil {
			resp.TotalPages = n
		} else {
			log.Debug().Err(err).Str("file", path).Msg("page count failed")
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleClassifyUpload accepts multipart/form-data with a "file" field. The
// upload is classified synchronously and removed afterwards.
func (o *Orchestrator) handleClassifyUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, o.deps.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest); return
	}
	file, hdr, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file", http.StatusBadRequest)
		return
	}
	defer file.Close()
	extract := r.FormValue("extract") == "on" || r.FormValue("extract") == "true"
	if extract && o.deps.Extractor == nil {
		http.Error(w, "ocr not configured", http.StatusServiceUnavailable); return
	}

	localPath, err := o.saveUpload(file, hdr.Filename)
	if err != nil {
		log.Error().Err(err).Msg("cannot save upload")
		http.Error(w, "cannot save upload", http.StatusInternalServerError); return
	}
	defer os.Remove(localPath)

	ctx, cancel := context.WithTimeout(r.Context(), o.deps.RequestTimeout)
	defer cancel()
	o.classifyLocal(ctx, w, localPath, extract)
}

// saveUpload persists an upload under UploadDir. Uploads whose name carries
// no usable extension get one from their sniffed content.
func (o *Orchestrator) saveUpload(src io.Reader, filename string) (string, error) {
	if err := os.MkdirAll(o.deps.UploadDir, 0o755); err != nil {
		return "", err
	}
	name := filepath.Base(filename)
	if name == "." || name == string(filepath.Separator) || name == "" {
		name = "upload"
	}
	localPath := filepath.Join(o.deps.UploadDir, uuid.NewString()+"_"+name)

	out, err := os.Create(localPath)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close(); os.Remove(localPath)
		return "", err
	}
	if err := out.Close(); err != nil {
		os.Remove(localPath)
		return "", err
	}

	info, err := filetype.Sniff(localPath)
	if err != nil {
		return localPath, nil
	}
	fixed := filetype.EnsureExtension(localPath, info)
	if fixed == localPath {
		return localPath, nil
	}
	if err := os.Rename(localPath, fixed); err != nil {
		os.Remove(localPath)
		return "", err
	}
	log.Debug().Str("upload", name).Str("mime", info.MIMEType).Str("file", filepath.Base(fixed)).Msg("upload extension inferred from content")
	return fixed, nil
}

func (o *Orchestrator) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	if o.deps.Queue == nil || o.deps.Status == nil {
		http.Error(w, "queue not configured", http.StatusServiceUnavailable); return
	}
	req, ok := decodeDocumentReq(w, r)
	if !ok {
		return
	}

	jobID := uuid.NewString()
	now := time.Now().UTC()
	ref := req.ref()
	if err := o.deps.Status.Set(r.Context(), jobID, store.Status{Status: store.StatusQueued, Ref: ref, Message: "queued"}); err != nil {
		log.Error().Err(err).Str("job_id", jobID).Msg("status write failed")
		http.Error(w, "status store unavailable", http.StatusServiceUnavailable); return
	}
	if err := o.deps.Queue.Enqueue(r.Context(), queue.Job{ID: jobID, Ref: ref, Extract: req.Extract, SubmittedAt: now}); err != nil {
		log.Error().Err(err).Msg("enqueue failed")
		http.Error(w, "queue unavailable", http.StatusServiceUnavailable); return
	}
	log.Info().Str("job_id", jobID).Str("ref", ref).Bool("extract", req.Extract).Msg("job created")
	writeJSON(w, http.StatusCreated, jobResp{Status: "ok", JobID: jobID, Message: "Classification job created successfully"})
}

func (o *Orchestrator) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if o.deps.Status == nil {
		http.Error(w, "queue not configured", http.StatusServiceUnavailable); return
	}
	id := strings.TrimPrefix(r.URL.Path, "/jobs/")
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	st, ok, err := o.deps.Status.Get(r.Context(), id)
	if err != nil {
		http.Error(w, "error", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, jobResp{Status: st.Status, JobID: id, Job: &st})
}

type cancelReq struct {
	JobID  string `json:"job_id"`
	Reason string `json:"reason,omitempty"`
}

func (o *Orchestrator) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if o.deps.Queue == nil || o.deps.Status == nil {
		http.Error(w, "queue not configured", http.StatusServiceUnavailable); return
	}
	var req cancelReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", 400)
		return
	}
	if req.JobID == "" {
		http.Error(w, "missing job_id", 400)
		return
	}
	st, ok, err := o.deps.Status.Get(r.Context(), req.JobID)
	if err != nil {
		http.Error(w, "error", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if st.Status == store.StatusDone || st.Status == store.StatusFailed {
		writeJSON(w, http.StatusConflict, jobResp{Status: st.Status, JobID: req.JobID, Message: "job already finished"}); return
	}
	if err := o.deps.Queue.CancelJob(r.Context(), req.JobID); err != nil {
		http.Error(w, "cancel failed", 500); return
	}
	st.Status = store.StatusCancelled
	st.Message = "Cancelled"
	if req.Reason != "" {
		st.Message = fmt.Sprintf("Cancelled: %s", req.Reason)
	}
	now := time.Now().UTC(); st.End = &now
	_ = o.deps.Status.Set(r.Context(), req.JobID, st)
	writeJSON(w, http.StatusOK, jobResp{Status: st.Status, JobID: req.JobID, Message: st.Message})
}

func (o *Orchestrator) handleStatus(w http.ResponseWriter, r *http.Request) {
	if o.deps.Checker == nil {
		http.Error(w, "status checks not configured", http.StatusServiceUnavailable); return
	}
	s := o.deps.Checker.Summary(r.Context())
	code := http.StatusOK
	if !s.Healthy() {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, s)
}
