package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"bulksend/internal/delivery"
	"bulksend/internal/dispatch"
	logx "bulksend/pkg/logx"
)

const (
	maxFormBytes = 8 << 20
	historyLimit = 50
)

type createJobRequest struct {
	Recipients []string `json:"recipients"`
	SenderName string   `json:"sender_name"`
	Subject    string   `json:"subject"`
	HTMLBody   string   `json:"html_body"`
	TextBody   string   `json:"text_body"`
	Workers    int      `json:"workers"`
}

type createJobResponse struct {
	ID string `json:"id"`
}

func (c createJobRequest) toDispatch(defaultWorkers int) (dispatch.Request, error) {
	rcpts := cleanRecipients(c.Recipients)
	if len(rcpts) == 0 {
		return dispatch.Request{}, errors.New("at least one recipient is required")
	}
	if strings.TrimSpace(c.Subject) == "" {
		return dispatch.Request{}, errors.New("subject is required")
	}
	if strings.TrimSpace(c.HTMLBody) == "" {
		return dispatch.Request{}, errors.New("html_body is required")
	}
	workers := c.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	return dispatch.Request{
		Recipients: rcpts,
		Workers:    workers,
		Template: delivery.Template{
			FromName: strings.TrimSpace(c.SenderName),
			Subject:  c.Subject,
			HTML:     c.HTMLBody,
			Text:     c.TextBody,
		},
	}, nil
}

// createStatus maps a Create error to an HTTP status.
func createStatus(err error) int {
	switch {
	case errors.Is(err, dispatch.ErrTooManyRecipients):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, dispatch.ErrTooManyActiveJobs):
		return http.StatusConflict
	case errors.Is(err, dispatch.ErrInvalidTemplate):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) create(r *http.Request, req createJobRequest) (string, int, error) {
	dreq, err := req.toDispatch(s.opts.DefaultWorkers())
	if err != nil {
		return "", http.StatusBadRequest, err
	}
	id, err := s.d.Create(dreq)
	if err != nil {
		status := createStatus(err)
		s.log.Warn("job rejected",
			logx.Int("recipients", len(dreq.Recipients)),
			logx.Int("status", status),
			logx.String("remote", r.RemoteAddr),
			logx.Err(err),
		)
		return "", status, err
	}
	s.log.Info("job accepted",
		logx.String("job", id),
		logx.Int("recipients", len(dreq.Recipients)),
		logx.Int("workers", dreq.Workers),
		logx.String("remote", r.RemoteAddr),
	)
	return id, http.StatusAccepted, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"active_jobs": s.d.Active(),
		"runners":     s.d.Stats().Counters,
	})
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	id, status, err := s.create(r, req)
	if err != nil {
		respondError(w, status, err.Error())
		return
	}
	respondJSON(w, status, createJobResponse{ID: id})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.d.List())
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	snap, err := s.d.Progress(chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, dispatch.ErrNotFound) {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.opts.History == nil {
		respondError(w, http.StatusNotFound, "history is disabled")
		return
	}
	n := historyLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		n = min(parsed, 500)
	}
	recs, err := s.opts.History.RecentJobs(r.Context(), n)
	if err != nil {
		s.log.Warn("history read failed", logx.Err(err))
		respondError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	respondJSON(w, http.StatusOK, recs)
}

// HTML pages.

type indexView struct {
	Token          string
	DefaultWorkers int
	MaxWorkers     int
	Error          string
	Form           createJobRequest
	RecipientsText string
}

type statusView struct {
	Token string
	ID    string
}

func (s *Server) render(w http.ResponseWriter, status int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.tmpl.ExecuteTemplate(w, name, data); err != nil {
		s.log.Warn("template render failed", logx.String("template", name), logx.Err(err))
	}
}

func (s *Server) indexView(r *http.Request) indexView {
	return indexView{
		Token:          requestToken(r),
		DefaultWorkers: s.opts.DefaultWorkers(),
		MaxWorkers:     s.opts.MaxWorkers(),
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, "index.html", s.indexView(r))
}

func (s *Server) handleSubmitForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, "invalid form: "+err.Error())
		return
	}
	workers, _ := strconv.Atoi(strings.TrimSpace(r.PostFormValue("workers")))
	req := createJobRequest{
		Recipients: ParseRecipients(r.PostFormValue("recipients")),
		SenderName: r.PostFormValue("sender_name"),
		Subject:    r.PostFormValue("subject"),
		HTMLBody:   r.PostFormValue("html_body"),
		TextBody:   r.PostFormValue("text_body"),
		Workers:    workers,
	}
	id, status, err := s.create(r, req)
	if err != nil {
		view := s.indexView(r)
		view.Error = err.Error()
		view.Form = req
		view.RecipientsText = r.PostFormValue("recipients")
		s.render(w, status, "index.html", view)
		return
	}
	target := "/status/" + url.PathEscape(id) + "?token=" + url.QueryEscape(requestToken(r))
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (s *Server) handleStatusPage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.d.Progress(id); err != nil {
		s.render(w, http.StatusNotFound, "notfound.html", statusView{Token: requestToken(r), ID: id})
		return
	}
	s.render(w, http.StatusOK, "status.html", statusView{Token: requestToken(r), ID: id})
}
