// Package router mounts the collaborator HTTP surface: schema listing,
// operation serialization, job records and the STAC documents built from them.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/harmony-core/internal/core/errs"
	"github.com/mohammed-shakir/harmony-core/internal/core/observability"
	"github.com/mohammed-shakir/harmony-core/internal/job"
	"github.com/mohammed-shakir/harmony-core/internal/logger"
	"github.com/mohammed-shakir/harmony-core/internal/operation"
	"github.com/mohammed-shakir/harmony-core/internal/schema"
	"github.com/mohammed-shakir/harmony-core/internal/stac"
	"github.com/mohammed-shakir/harmony-core/internal/stac/doccache"
	"github.com/mohammed-shakir/harmony-core/internal/store/jobstore"
	"github.com/mohammed-shakir/harmony-core/internal/workitems"
)

const maxBody = 1 << 20

// ErrDisabled marks a route whose backing collaborator is not configured.
var ErrDisabled = errors.New("feature disabled")

type Dispatcher interface {
	Dispatch(ctx context.Context, op *operation.DataOperation) error
	Enabled() bool
	Version() string
}

type Publisher interface {
	Publish(ctx context.Context, j *job.Job) ([]string, error)
}

type WorkItems interface {
	Start(jobID string, page, limit int) bool
	Refresh(ctx context.Context, jobID string)
	Latest(jobID string) (workitems.Table, bool)
}

// Deps are the collaborators behind the routes. Dispatcher, Publisher and
// WorkItems may be nil.
type Deps struct {
	Logger     *slog.Logger
	Registry   *schema.Registry
	Jobs       jobstore.Store
	Docs       *doccache.Cache
	Dispatcher Dispatcher
	Publisher  Publisher
	WorkItems  WorkItems
}

type api struct {
	Deps
	ser *operation.Serializer
}

func Mount(r chi.Router, d Deps) {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Registry == nil {
		d.Registry = schema.Default()
	}
	if d.Docs == nil {
		d.Docs = doccache.New(0)
	}
	a := &api{Deps: d, ser: operation.NewSerializer(d.Registry)}

	r.Group(func(r chi.Router) {
		r.Use(instrument)

		r.Get("/schemas", a.listSchemas)
		r.Get("/schemas/{version}", a.getSchema)

		r.Post("/operations/serialize", a.serialize)
		r.Post("/operations/dispatch", a.dispatch)

		r.Put("/jobs/{jobID}", a.putJob)
		r.Get("/jobs/{jobID}", a.getJob)
		r.Post("/jobs/{jobID}/publish", a.publish)
		r.Post("/jobs/{jobID}/work-items/watch", a.watchWorkItems)
		r.Get("/jobs/{jobID}/work-items", a.getWorkItems)

		r.Get("/stac/{jobID}", a.getCatalog)
		r.Get("/stac/{jobID}/"+stac.CatalogFile, a.getCatalog)
		r.Get("/stac/{jobID}/{index}", a.getItem)
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// instrument records request metrics under the matched route pattern.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		observability.ObserveHTTP(r.Method, route, sw.code, time.Since(start).Seconds())
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, jobstore.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrUnsupportedVersion), errors.Is(err, errs.ErrMalformedInput):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrSchemaValidation), errors.Is(err, errs.ErrGeometry):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrDisabled):
		return http.StatusNotImplemented
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (a *api) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= 500 {
		a.Logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "err", err)
	} else {
		a.Logger.DebugContext(r.Context(), "request rejected", "path", r.URL.Path, "status", code, "err", err)
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeRaw(w http.ResponseWriter, code int, contentType string, b []byte) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(code)
	_, _ = w.Write(b)
}

func readBody(r *http.Request) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r.Body, maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", errs.ErrMalformedInput, err)
	}
	if len(b) > maxBody {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", errs.ErrMalformedInput, maxBody)
	}
	return b, nil
}

func (a *api) listSchemas(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"latest":   a.Registry.Latest().ID,
		"versions": a.Registry.Versions(),
	})
}

func (a *api) getSchema(w http.ResponseWriter, r *http.Request) {
	v, err := a.Registry.Resolve(chi.URLParam(r, "version"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeRaw(w, http.StatusOK, "application/schema+json", v.Document)
}

// serialize encodes a posted operation for ?version= (latest when absent).
// ?validate=false skips schema validation.
func (a *api) serialize(w http.ResponseWriter, r *http.Request) {
	version := strings.TrimSpace(r.URL.Query().Get("version"))
	validate := true
	if raw := r.URL.Query().Get("validate"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			a.fail(w, r, fmt.Errorf("%w: validate must be a boolean", errs.ErrMalformedInput))
			return
		}
		validate = v
	}
	ctx := logger.WithSchemaVersion(r.Context(), version)

	body, err := readBody(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	op, err := operation.Decode(body)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	out, err := a.ser.Serialize(op, version, operation.WithValidation(validate))
	observability.ObserveSerialize(version, err)
	if err != nil {
		a.fail(w, r.WithContext(ctx), err)
		return
	}
	writeRaw(w, http.StatusOK, "application/json", []byte(out))
}

func (a *api) dispatch(w http.ResponseWriter, r *http.Request) {
	if a.Dispatcher == nil {
		a.fail(w, r, fmt.Errorf("%w: dispatch", ErrDisabled))
		return
	}
	body, err := readBody(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	op, err := operation.Decode(body)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if op.RequestID() == "" {
		if err := op.SetRequestID(operation.NewRequestID()); err != nil {
			a.fail(w, r, err)
			return
		}
	}
	if err := a.Dispatcher.Dispatch(r.Context(), op); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"requestId": op.RequestID(),
		"version":   a.Dispatcher.Version(),
		"sent":      a.Dispatcher.Enabled(),
	})
}

func (a *api) putJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	ctx := logger.WithJobID(r.Context(), id)

	body, err := readBody(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var rec job.Record
	if err := json.Unmarshal(body, &rec); err != nil {
		a.fail(w, r, fmt.Errorf("%w: decode job: %v", errs.ErrMalformedInput, err))
		return
	}
	switch rec.RequestID {
	case "":
		rec.RequestID = id
	case id:
	default:
		a.fail(w, r, fmt.Errorf("%w: requestId %q does not match path %q", errs.ErrMalformedInput, rec.RequestID, id))
		return
	}
	j, err := job.New(rec)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.Jobs.Put(ctx, j); err != nil {
		a.fail(w, r, err)
		return
	}
	if a.WorkItems != nil {
		a.WorkItems.Refresh(ctx, id)
	}
	a.Logger.InfoContext(ctx, "job stored", "status", string(j.Status()), "links", len(j.Links()))
	writeJSON(w, http.StatusOK, j)
}

func (a *api) loadJob(r *http.Request) (*job.Job, error) {
	id := chi.URLParam(r, "jobID")
	return a.Jobs.Get(logger.WithJobID(r.Context(), id), id)
}

func (a *api) getJob(w http.ResponseWriter, r *http.Request) {
	j, err := a.loadJob(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

// rendered returns the cached documents and answers conditional requests.
// It reports false once a response has been written.
func (a *api) rendered(w http.ResponseWriter, r *http.Request) (*doccache.Rendered, bool) {
	j, err := a.loadJob(r)
	if err != nil {
		a.fail(w, r, err)
		return nil, false
	}
	docs, err := a.Docs.Get(j)
	if err != nil {
		a.fail(w, r, err)
		return nil, false
	}
	etag := `"` + docs.Fingerprint + `"`
	w.Header().Set("ETag", etag)
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return nil, false
	}
	return docs, true
}

func (a *api) getCatalog(w http.ResponseWriter, r *http.Request) {
	docs, ok := a.rendered(w, r)
	if !ok {
		return
	}
	writeRaw(w, http.StatusOK, "application/json", docs.Catalog)
}

func (a *api) getItem(w http.ResponseWriter, r *http.Request) {
	idx, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		a.fail(w, r, fmt.Errorf("%w: item index must be an integer", errs.ErrMalformedInput))
		return
	}
	docs, ok := a.rendered(w, r)
	if !ok {
		return
	}
	b, err := docs.Item(idx)
	if err != nil {
		w.Header().Del("ETag")
		a.fail(w, r, err)
		return
	}
	writeRaw(w, http.StatusOK, "application/geo+json", b)
}

func (a *api) publish(w http.ResponseWriter, r *http.Request) {
	if a.Publisher == nil {
		a.fail(w, r, fmt.Errorf("%w: publishing", ErrDisabled))
		return
	}
	j, err := a.loadJob(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	keys, err := a.Publisher.Publish(r.Context(), j)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"keys": keys})
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", errs.ErrMalformedInput, name)
	}
	return n, nil
}

func (a *api) watchWorkItems(w http.ResponseWriter, r *http.Request) {
	if a.WorkItems == nil {
		a.fail(w, r, fmt.Errorf("%w: work-items polling", ErrDisabled))
		return
	}
	page, err := intParam(r, "page", 1)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	limit, err := intParam(r, "limit", 10)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	started := a.WorkItems.Start(chi.URLParam(r, "jobID"), page, limit)
	writeJSON(w, http.StatusAccepted, map[string]any{"started": started})
}

func (a *api) getWorkItems(w http.ResponseWriter, r *http.Request) {
	if a.WorkItems == nil {
		a.fail(w, r, fmt.Errorf("%w: work-items polling", ErrDisabled))
		return
	}
	t, ok := a.WorkItems.Latest(chi.URLParam(r, "jobID"))
	if !ok {
		a.fail(w, r, fmt.Errorf("%w: no work-items table loaded", jobstore.ErrNotFound))
		return
	}
	w.Header().Set("X-Page", strconv.Itoa(t.Page))
	writeRaw(w, http.StatusOK, "text/html; charset=utf-8", t.Fragment)
}
