package admin

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"eventpush/internal/dispatch"
	"eventpush/internal/storage"
	logx "eventpush/pkg/logx"
)

//go:embed templates/*.html
var templateFS embed.FS

// Store is the subset of storage.Store the admin surface needs.
type Store interface {
	CreateEvent(ctx context.Context, in storage.NewEvent) (storage.Event, error)
	ListEvents(ctx context.Context) ([]storage.Event, error)
	DeleteEvent(ctx context.Context, id int64) error
	AppendAudit(ctx context.Context, e storage.AuditEntry) error
	Ping(ctx context.Context) error
}

// DispatchStatus reports scheduler health for /healthz.
type DispatchStatus interface {
	Stats() dispatch.Stats
	Healthy() bool
}

type Handler struct {
	store    Store
	auth     Authenticator
	log      logx.Logger
	status   DispatchStatus
	gatherer prometheus.Gatherer
	pages    map[string]*template.Template
}

type HandlerOption func(*Handler)

func WithDispatchStatus(s DispatchStatus) HandlerOption {
	return func(h *Handler) { h.status = s }
}

// WithGatherer serves /metrics from g instead of the default registry.
func WithGatherer(g prometheus.Gatherer) HandlerOption {
	return func(h *Handler) {
		if g != nil {
			h.gatherer = g
		}
	}
}

func NewHandler(store Store, auth Authenticator, log logx.Logger, opts ...HandlerOption) (*Handler, error) {
	if store == nil {
		return nil, errors.New("admin: store is nil")
	}
	if auth == nil {
		return nil, errors.New("admin: authenticator is nil")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	pages, err := parsePages("login.html", "admin.html")
	if err != nil {
		return nil, err
	}
	h := &Handler{
		store:    store,
		auth:     auth,
		log:      log,
		gatherer: prometheus.DefaultGatherer,
		pages:    pages,
	}
	for _, o := range opts {
		o(h)
	}
	return h, nil
}

func parsePages(names ...string) (map[string]*template.Template, error) {
	base, err := template.ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parse base template: %w", err)
	}
	out := make(map[string]*template.Template, len(names))
	for _, name := range names {
		t, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("clone base template for %s: %w", name, err)
		}
		if _, err := t.ParseFS(templateFS, "templates/"+name); err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		out[name] = t
	}
	return out, nil
}

// Router builds the route table. corsOrigins applies to /api/* only.
func (h *Handler) Router(corsOrigins []string) http.Handler {
	r := mux.NewRouter()
	r.Use(requestID, accessLog(h.log), recovery(h.log))

	r.HandleFunc("/", h.index).Methods(http.MethodGet)
	r.HandleFunc("/admin", h.admin).Methods(http.MethodGet)
	r.HandleFunc("/login", h.login).Methods(http.MethodPost)
	r.HandleFunc("/create", h.create).Methods(http.MethodPost)
	r.HandleFunc("/delete/{id:[0-9]+}", h.delete).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(newCORS(corsOrigins).Handler)
	api.HandleFunc("/events", h.apiEvents).Methods(http.MethodGet, http.MethodOptions)
	return r
}

func (h *Handler) index(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/admin", http.StatusFound)
}

type pageData struct {
	Flash  string
	PW     string
	Events []storage.Event
}

func (h *Handler) admin(w http.ResponseWriter, r *http.Request) {
	data := pageData{Flash: popFlash(w, r)}
	pw := r.URL.Query().Get("pw")
	if !h.auth.Authorize(r, pw) {
		h.render(w, r, "login.html", data)
		return
	}
	events, err := h.store.ListEvents(r.Context())
	if err != nil {
		h.log.Error("list events failed", logx.Err(err))
		http.Error(w, "failed to load events", http.StatusInternalServerError)
		return
	}
	data.PW = pw
	data.Events = events
	h.render(w, r, "admin.html", data)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, page string, data pageData) {
	t, ok := h.pages[page]
	if !ok {
		http.Error(w, "template not found", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := t.ExecuteTemplate(w, "base", data); err != nil {
		h.log.Error("render failed", logx.String("page", page), logx.String("request_id", RequestID(r.Context())), logx.Err(err))
	}
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	pw := r.PostFormValue("password")
	if h.auth.Authorize(r, pw) {
		http.Redirect(w, r, adminURL(pw), http.StatusFound)
		return
	}
	h.log.Warn("admin login rejected", logx.String("remote", r.RemoteAddr))
	setFlash(w, "Wrong password")
	http.Redirect(w, r, "/admin", http.StatusFound)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	pw := r.PostFormValue("pw")
	if !h.auth.Authorize(r, pw) {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}
	in := storage.NewEvent{
		Name:            r.PostFormValue("name"),
		EventDatetime:   r.PostFormValue("event_datetime"),
		PublishDatetime: r.PostFormValue("publish_datetime"),
		DisplayText:     r.PostFormValue("display_text"),
		Deadline:        strings.TrimSpace(r.PostFormValue("deadline")),
	}
	ev, err := h.store.CreateEvent(r.Context(), in)
	h.audit(r, "event.create", ev.ID, err)
	if err != nil {
		h.log.Error("create event failed", logx.Err(err))
		http.Error(w, "failed to create event", http.StatusInternalServerError)
		return
	}
	h.log.Info("event created",
		logx.Int64("event_id", ev.ID),
		logx.String("name", ev.Name),
		logx.String("publish_datetime", ev.PublishDatetime),
	)
	setFlash(w, "Event created")
	http.Redirect(w, r, adminURL(pw), http.StatusFound)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	pw := r.URL.Query().Get("pw")
	if !h.auth.Authorize(r, pw) {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	err = h.store.DeleteEvent(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	h.audit(r, "event.delete", id, err)
	if err != nil {
		h.log.Error("delete event failed", logx.Int64("event_id", id), logx.Err(err))
		http.Error(w, "failed to delete event", http.StatusInternalServerError)
		return
	}
	h.log.Info("event deleted", logx.Int64("event_id", id))
	setFlash(w, "Event deleted")
	http.Redirect(w, r, adminURL(pw), http.StatusFound)
}

func (h *Handler) apiEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.store.ListEvents(r.Context())
	if err != nil {
		h.log.Error("list events failed", logx.Err(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load events"})
		return
	}
	if events == nil {
		events = []storage.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

type healthReport struct {
	Status     string          `json:"status"`
	Store      string          `json:"store"`
	Dispatcher *dispatchHealth `json:"dispatcher,omitempty"`
}

type dispatchHealth struct {
	Healthy bool           `json:"healthy"`
	Stats   dispatch.Stats `json:"stats"`
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	rep := healthReport{Status: "ok", Store: "ok"}
	code := http.StatusOK
	if err := h.store.Ping(ctx); err != nil {
		rep.Status = "down"
		rep.Store = err.Error()
		code = http.StatusServiceUnavailable
	}
	if h.status != nil {
		dh := &dispatchHealth{Healthy: h.status.Healthy(), Stats: h.status.Stats()}
		rep.Dispatcher = dh
		if !dh.Healthy && rep.Status == "ok" {
			rep.Status = "degraded"
		}
	}
	writeJSON(w, code, rep)
}

func (h *Handler) audit(r *http.Request, action string, id int64, err error) {
	e := storage.AuditEntry{
		At:      time.Now(),
		Actor:   "admin",
		Remote:  r.RemoteAddr,
		Action:  action,
		EventID: id,
		OK:      err == nil,
		Meta:    RequestID(r.Context()),
	}
	if err != nil {
		e.Error = err.Error()
	}
	if aerr := h.store.AppendAudit(r.Context(), e); aerr != nil {
		h.log.Debug("audit append failed", logx.Err(aerr))
	}
}

func adminURL(pw string) string {
	return "/admin?pw=" + url.QueryEscape(pw)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
