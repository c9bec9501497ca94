package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/michaelv2/claude-cortex-core/internal/engine"
	"github.com/michaelv2/claude-cortex-core/internal/memerr"
)

type rememberRequest struct {
	Title        string         `json:"title" validate:"required,max=200"`
	Content      string         `json:"content" validate:"required"`
	Category     string         `json:"category" validate:"omitempty,oneof=architecture pattern preference error context learning todo note relationship custom"`
	Tags         []string       `json:"tags"`
	Importance   string         `json:"importance" validate:"omitempty,oneof=high medium low"`
	Type         string         `json:"type" validate:"omitempty,oneof=short_term long_term episodic"`
	Project      string         `json:"project"`
	Scope        string         `json:"scope" validate:"omitempty,oneof=project global"`
	Transferable bool           `json:"transferable"`
	Salience     *float64       `json:"salience" validate:"omitempty,gte=0,lte=1"`
	Metadata     map[string]any `json:"metadata"`
	Strict       bool           `json:"strict"`
}

func (s *Server) handleRemember(w http.ResponseWriter, r *http.Request) {
	var req rememberRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	id, err := s.eng.AddMemory(engine.AddRequest{
		Title:        req.Title,
		Content:      req.Content,
		Category:     req.Category,
		Tags:         req.Tags,
		Importance:   req.Importance,
		Type:         req.Type,
		Project:      req.Project,
		Scope:        req.Scope,
		Transferable: req.Transferable,
		Salience:     req.Salience,
		Metadata:     req.Metadata,
		Strict:       req.Strict,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

type recallRequest struct {
	Query          string  `json:"query"`
	Project        string  `json:"project"`
	Category       string  `json:"category" validate:"omitempty,oneof=architecture pattern preference error context learning todo note relationship custom"`
	MinSalience    float64 `json:"minSalience" validate:"gte=0,lte=1"`
	Limit          int     `json:"limit" validate:"gte=0,lte=100"`
	IncludeGlobal  bool    `json:"includeGlobal"`
	IncludeDecayed bool    `json:"includeDecayed"`
	Mode           string  `json:"mode" validate:"omitempty,oneof=query recent important"`
}

func (s *Server) handleRecall(w http.ResponseWriter, r *http.Request) {
	var req recallRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	results, err := s.eng.SearchMemories(engine.SearchRequest{
		Query:          req.Query,
		Project:        req.Project,
		Category:       req.Category,
		MinSalience:    req.MinSalience,
		IncludeGlobal:  req.IncludeGlobal,
		IncludeDecayed: req.IncludeDecayed,
		Limit:          req.Limit,
		Mode:           req.Mode,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	if results == nil {
		results = []engine.SearchResult{}
	}
	writeJSON(w, http.StatusOK, results)
}

type forgetRequest struct {
	IDs           []int64 `json:"ids"`
	Category      string  `json:"category" validate:"omitempty,oneof=architecture pattern preference error context learning todo note relationship custom"`
	OlderThanDays int     `json:"olderThan" validate:"gte=0"`
	Project       string  `json:"project"`
	DryRun        bool    `json:"dryRun"`
	Confirm       bool    `json:"confirm"`
}

func (s *Server) handleForget(w http.ResponseWriter, r *http.Request) {
	var req forgetRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	result, err := s.eng.Forget(engine.ForgetRequest{
		IDs:           req.IDs,
		Category:      req.Category,
		OlderThanDays: req.OlderThanDays,
		Project:       req.Project,
		DryRun:        req.DryRun,
		Confirm:       req.Confirm,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAccess(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	m, err := s.eng.AccessMemory(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleRelated(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	related, err := s.eng.GetRelated(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, related)
}

type linkRequest struct {
	SourceID     int64   `json:"sourceId" validate:"required"`
	TargetID     int64   `json:"targetId" validate:"required"`
	Relationship string  `json:"relationship" validate:"required,oneof=references extends contradicts related"`
	Strength     float64 `json:"strength" validate:"gte=0,lte=1"`
}

func (s *Server) handleLink(w http.ResponseWriter, r *http.Request) {
	var req linkRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.eng.LinkMemories(req.SourceID, req.TargetID, req.Relationship, req.Strength); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]bool{"linked": true})
}

func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	summary, err := s.eng.GetContext(r.URL.Query().Get("query"), r.URL.Query().Get("project"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type startSessionRequest struct {
	Project string `json:"project"`
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	info, err := s.eng.StartSession(req.Project)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

type endSessionRequest struct {
	Summary string `json:"summary"`
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	var req endSessionRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	stats, err := s.eng.EndSession(chi.URLParam(r, "sessionID"), req.Summary)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type consolidateRequest struct {
	DryRun bool `json:"dryRun"`
	Force  bool `json:"force"`
}

func (s *Server) handleConsolidate(w http.ResponseWriter, r *http.Request) {
	var req consolidateRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	result, err := s.eng.Consolidate(r.Context(), engine.ConsolidateOptions{DryRun: req.DryRun, Force: req.Force})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.eng.Stats()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	memories, err := s.eng.Export(r.URL.Query().Get("project"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, memories)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Data json.RawMessage `json:"data" validate:"required"`
	}
	if err := s.decode(r, &payload); err != nil {
		s.writeError(w, err)
		return
	}
	count, err := s.eng.Import(payload.Data)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"imported": count})
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"project": s.eng.Project()})
}

type setProjectRequest struct {
	Project string `json:"project" validate:"required"`
}

func (s *Server) handleSetProject(w http.ResponseWriter, r *http.Request) {
	var req setProjectRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	s.eng.SetProject(req.Project)
	writeJSON(w, http.StatusOK, map[string]string{"project": s.eng.Project()})
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		return 0, memerr.InvalidQuery("memory id must be an integer")
	}
	return id, nil
}
