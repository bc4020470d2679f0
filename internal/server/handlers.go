package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/nao1215/domaincrawl/internal/crawler"
	"github.com/nao1215/domaincrawl/internal/model"
)

// banner is the body of GET /.
const banner = "domaincrawl: nothing to see here. Try /crawl/{domain}, /urls/{domain} or /count/{domain}.\n"

// CrawlResponse is the body of /crawl/{domain}.
type CrawlResponse struct {
	Domain  string           `json:"domain"`
	Status  model.CrawlState `json:"status"`
	CrawlID string           `json:"crawl_id,omitempty"`
}

// URLsResponse is the body of /urls/{domain}. URLs holds strings, or
// model.DiscoveredURL values with ?detail=1.
type URLsResponse struct {
	Domain string           `json:"domain"`
	State  model.CrawlState `json:"state"`
	Count  int              `json:"count"`
	URLs   any              `json:"urls"`
}

// CountResponse is the body of /count/{domain}.
type CountResponse struct {
	Domain string           `json:"domain"`
	State  model.CrawlState `json:"state"`
	Count  int              `json:"count"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(banner)) //nolint:errcheck // client went away
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n")) //nolint:errcheck // client went away
}

func (s *Server) handleCrawl(w http.ResponseWriter, r *http.Request) {
	domain := r.PathValue("domain")
	state, err := s.engine.StartCrawl(domain)
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := CrawlResponse{Domain: domain, Status: state}
	if st, err := s.engine.Status(domain); err == nil {
		resp.Domain = st.Domain
		resp.CrawlID = st.CrawlID
	}
	s.writeJSON(w, http.StatusAccepted, resp)
}

func (s *Server) handleURLs(w http.ResponseWriter, r *http.Request) {
	domain := r.PathValue("domain")

	detail, _ := strconv.ParseBool(r.URL.Query().Get("detail")) //nolint:errcheck // invalid means false
	if detail {
		res, err := s.engine.Result(domain)
		if err != nil {
			s.writeError(w, err)
			return
		}
		urls := res.URLs
		if urls == nil {
			urls = []model.DiscoveredURL{}
		}
		s.writeJSON(w, http.StatusOK, URLsResponse{Domain: res.Domain, State: res.State, Count: len(urls), URLs: urls})
		return
	}

	urls, state, err := s.engine.URLs(domain)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if urls == nil {
		urls = []string{}
	}
	s.writeJSON(w, http.StatusOK, URLsResponse{Domain: s.canonical(domain), State: state, Count: len(urls), URLs: urls})
}

func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	domain := r.PathValue("domain")
	n, state, err := s.engine.Count(domain)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, CountResponse{Domain: s.canonical(domain), State: state, Count: n})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.Status(r.PathValue("domain"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

// canonical returns the registry's name for domain, or domain itself when
// it does not parse.
func (s *Server) canonical(domain string) string {
	if d, err := s.engine.Canonical(domain); err == nil {
		return d
	}
	return domain
}

// writeError maps engine errors to status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, crawler.ErrMalformedDomain):
		status = http.StatusBadRequest
	case errors.Is(err, crawler.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, crawler.ErrRegistryClosed):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	s.writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("failed to write response", "error", err)
	}
}
