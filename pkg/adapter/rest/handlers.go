package rest

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/marmos91/fragments/internal/logger"
	"github.com/marmos91/fragments/pkg/auth"
	"github.com/marmos91/fragments/pkg/fragment"
	"github.com/marmos91/fragments/pkg/mediatype"
)

// Handler returns the router serving the fragments API:
//
//	GET    /                           health check (unauthenticated)
//	GET    /v1/fragments[?expand=1]    list ids or full records
//	POST   /v1/fragments               create from the request body
//	GET    /v1/fragments/{id}[.ext]    payload, optionally converted
//	GET    /v1/fragments/{id}/info     metadata record
//	PUT    /v1/fragments/{id}          replace payload (same type)
//	DELETE /v1/fragments/{id}          delete
func (a *HTTPAdapter) Handler() http.Handler {
	router := mux.NewRouter()
	router.Use(a.instrument)
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	router.HandleFunc("/", a.handleHealth).Methods(http.MethodGet)

	v1 := router.PathPrefix("/v1").Subrouter()
	v1.Use(a.authenticate, a.rateLimit)
	v1.HandleFunc("/fragments", a.handleList).Methods(http.MethodGet)
	v1.HandleFunc("/fragments", a.handleCreate).Methods(http.MethodPost)
	v1.HandleFunc("/fragments/{id}/info", a.handleInfo).Methods(http.MethodGet)
	v1.HandleFunc("/fragments/{id}", a.handleGet).Methods(http.MethodGet)
	v1.HandleFunc("/fragments/{id}", a.handleUpdate).Methods(http.MethodPut)
	v1.HandleFunc("/fragments/{id}", a.handleDelete).Methods(http.MethodDelete)

	return router
}

// requestLog returns a logger scoped to the request and its owner.
func requestLog(r *http.Request) (*logger.Fields, string) {
	p, _ := auth.FromContext(r.Context())
	return logger.With("method", r.Method, "path", r.URL.Path, "owner", p.OwnerID), p.OwnerID
}

func (a *HTTPAdapter) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-cache")
	writeOK(w, http.StatusOK, map[string]any{"service": "fragments"})
}

func (a *HTTPAdapter) handleList(w http.ResponseWriter, r *http.Request) {
	log, owner := requestLog(r)
	expand := r.URL.Query().Get("expand") == "1"

	if expand {
		frags, err := a.repo.ByUserExpanded(r.Context(), owner)
		if err != nil {
			writeFailure(w, log, err)
			return
		}
		if frags == nil {
			frags = []*fragment.Fragment{}
		}
		log.Debug("listed %d fragments (expanded)", len(frags))
		writeOK(w, http.StatusOK, map[string]any{"fragments": frags})
		return
	}

	ids, err := a.repo.ByUser(r.Context(), owner)
	if err != nil {
		writeFailure(w, log, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	log.Debug("listed %d fragments", len(ids))
	writeOK(w, http.StatusOK, map[string]any{"fragments": ids})
}

func (a *HTTPAdapter) handleCreate(w http.ResponseWriter, r *http.Request) {
	log, owner := requestLog(r)

	contentType, ok := a.contentType(w, r, log)
	if !ok {
		return
	}
	data, ok := a.readBody(w, r, log)
	if !ok {
		return
	}

	frag, err := a.repo.Construct(owner, contentType)
	if err != nil {
		writeFailure(w, log, err)
		return
	}
	if err := frag.Save(r.Context()); err != nil {
		writeFailure(w, log, err)
		return
	}
	if err := frag.SetData(r.Context(), data); err != nil {
		writeFailure(w, log, err)
		return
	}

	log.Info("created fragment %s (%s, %d bytes)", frag.ID(), frag.Type(), frag.Size())

	w.Header().Set("Location", a.location(r, frag.ID()))
	writeOK(w, http.StatusCreated, map[string]any{"fragment": frag})
}

func (a *HTTPAdapter) handleGet(w http.ResponseWriter, r *http.Request) {
	log, owner := requestLog(r)

	id, ext := splitExtension(mux.Vars(r)["id"])

	frag, err := a.repo.ByID(r.Context(), owner, id)
	if err != nil {
		writeFailure(w, log, err)
		return
	}

	data, mimeType, err := frag.Render(r.Context(), ext)
	if err != nil {
		writeFailure(w, log, err)
		return
	}

	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		log.Debug("write payload of %s: %v", id, err)
	}
}

func (a *HTTPAdapter) handleInfo(w http.ResponseWriter, r *http.Request) {
	log, owner := requestLog(r)

	frag, err := a.repo.ByID(r.Context(), owner, mux.Vars(r)["id"])
	if err != nil {
		writeFailure(w, log, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"fragment": frag})
}

func (a *HTTPAdapter) handleUpdate(w http.ResponseWriter, r *http.Request) {
	log, owner := requestLog(r)
	id := mux.Vars(r)["id"]

	contentType, ok := a.contentType(w, r, log)
	if !ok {
		return
	}
	data, ok := a.readBody(w, r, log)
	if !ok {
		return
	}

	frag, err := a.repo.ByID(r.Context(), owner, id)
	if err != nil {
		writeFailure(w, log, err)
		return
	}
	if err := frag.Replace(r.Context(), contentType, data); err != nil {
		writeFailure(w, log, err)
		return
	}

	log.Info("updated fragment %s (%d bytes)", id, frag.Size())
	writeOK(w, http.StatusOK, map[string]any{"fragment": frag})
}

func (a *HTTPAdapter) handleDelete(w http.ResponseWriter, r *http.Request) {
	log, owner := requestLog(r)
	id := mux.Vars(r)["id"]

	if err := a.repo.Delete(r.Context(), owner, id); err != nil {
		writeFailure(w, log, err)
		return
	}

	log.Info("deleted fragment %s", id)
	writeOK(w, http.StatusOK, nil)
}

// contentType returns the canonical Content-Type of r, or writes a 415 and
// returns false when it is missing, malformed or not an accepted type.
func (a *HTTPAdapter) contentType(w http.ResponseWriter, r *http.Request, log *logger.Fields) (string, bool) {
	raw := r.Header.Get("Content-Type")
	canonical, err := mediatype.Canonical(raw)
	if err != nil || !a.repo.IsSupportedType(canonical) {
		log.Warn("unsupported content type %q", raw)
		writeError(w, http.StatusUnsupportedMediaType, "unsupported content type: "+raw)
		return "", false
	}
	return canonical, true
}

// readBody reads the request body up to MaxBodyBytes. Oversized bodies get
// a 413, empty bodies a 400.
func (a *HTTPAdapter) readBody(w http.ResponseWriter, r *http.Request, log *logger.Fields) ([]byte, bool) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, a.config.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge,
				"request body exceeds "+strconv.FormatInt(tooLarge.Limit, 10)+" bytes")
			return nil, false
		}
		log.Debug("read body: %v", err)
		writeError(w, http.StatusBadRequest, "unable to read request body")
		return nil, false
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "request body must not be empty")
		return nil, false
	}
	return data, true
}

// location builds the absolute URL of fragment id, based on APIURL when
// configured and on the request Host otherwise.
func (a *HTTPAdapter) location(r *http.Request, id string) string {
	base := a.config.APIURL
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		base = scheme + "://" + r.Host
	}

	u, err := url.Parse(base)
	if err != nil {
		return "/v1/fragments/" + id
	}
	return u.ResolveReference(&url.URL{Path: "/v1/fragments/" + id}).String()
}

// splitExtension splits "abc.html" into ("abc", ".html").
func splitExtension(idWithExt string) (string, string) {
	ext := path.Ext(idWithExt)
	return strings.TrimSuffix(idWithExt, ext), ext
}
