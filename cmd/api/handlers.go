package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"newshub-backend/internal/domain"
	"newshub-backend/internal/infra/config"
	httpinfra "newshub-backend/internal/infra/http"
	"newshub-backend/internal/infra/metrics"
	"newshub-backend/internal/usecase/access"
	"newshub-backend/internal/usecase/analytics"
	"newshub-backend/internal/usecase/engagement"
	"newshub-backend/internal/usecase/orgs"
	"newshub-backend/internal/usecase/recommend"
	"newshub-backend/internal/usecase/related"
)

var errBadRequest = errors.New("некорректный запрос")

type apiHandlers struct {
	cfg       config.AppConfig
	policy    *access.Policy
	content   domain.ContentStore
	engage    *engagement.Service
	orgs      *orgs.Service
	recommend *recommend.Service
	linker    *related.Linker
	trending  *analytics.Extractor
	cache     domain.Cache
	queue     domain.RecomputeQueue
	log       zerolog.Logger
}

func (h *apiHandlers) mount(r chi.Router) {
	r.Get("/api/v1/access-check", h.accessCheck)
	r.Get("/api/v1/recommendations", h.recommendations)
	r.Get("/api/v1/trending", h.trendingTopics)

	r.Group(func(protected chi.Router) {
		protected.Use(httpinfra.RequireAuthenticated)

		protected.Post("/api/v1/engagement", h.recordEngagement)
		protected.Post("/api/v1/content", h.ingestContent)
		protected.Post("/api/v1/admin/recompute-popularity", h.recomputePopularity)

		protected.Post("/api/v1/organizations/{orgID}/members", h.addMember)
		protected.Get("/api/v1/organizations/{orgID}/members", h.listMembers)
		protected.Put("/api/v1/organizations/{orgID}/members/{principalID}/role", h.changeRole)
		protected.Delete("/api/v1/organizations/{orgID}/members/{principalID}", h.removeMember)
	})
}

func statusFromError(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrLastAdminViolation),
		errors.Is(err, domain.ErrDuplicateMembership):
		return http.StatusConflict
	case errors.Is(err, engagement.ErrReactionRequired),
		errors.Is(err, engagement.ErrUnknownKind),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *apiHandlers) writeFailure(w http.ResponseWriter, err error) {
	status := statusFromError(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("внутренняя ошибка обработчика")
	}
	httpinfra.WriteError(w, status, err)
}

func (h *apiHandlers) accessCheck(w http.ResponseWriter, r *http.Request) {
	contentID := r.URL.Query().Get("content_id")
	if contentID == "" {
		h.writeFailure(w, errBadRequest)
		return
	}
	principal := httpinfra.PrincipalFromContext(r.Context())
	item, err := h.content.GetByID(r.Context(), contentID)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	if err := h.policy.CheckAccess(principal.Tier, item.AccessTier); err != nil {
		switch {
		case errors.Is(err, domain.ErrUnauthenticated):
			metrics.IncAccessCheck("unauthenticated")
		default:
			metrics.IncAccessCheck("denied")
		}
		h.writeFailure(w, err)
		return
	}
	metrics.IncAccessCheck("allowed")
	httpinfra.WriteJSON(w, http.StatusOK, map[string]any{
		"allowed":      true,
		"content_id":   item.ID,
		"content_tier": item.AccessTier,
	})
}

type engagementRequest struct {
	ContentID        string `json:"content_id"`
	Kind             string `json:"kind"`
	ReactionType     string `json:"reaction_type,omitempty"`
	TimeSpentSeconds int    `json:"time_spent_seconds,omitempty"`
	Completed        bool   `json:"completed,omitempty"`
	Saved            *bool  `json:"saved,omitempty"`
}

func (h *apiHandlers) recordEngagement(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req engagementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeFailure(w, errBadRequest)
		return
	}
	if req.ContentID == "" || req.Kind == "" {
		h.writeFailure(w, errBadRequest)
		return
	}
	principal := httpinfra.PrincipalFromContext(r.Context())
	event, err := h.engage.Record(r.Context(), principal, req.ContentID, engagement.RecordParams{
		Kind:             domain.EngagementKind(req.Kind),
		ReactionType:     req.ReactionType,
		TimeSpentSeconds: req.TimeSpentSeconds,
		Completed:        req.Completed,
		Saved:            req.Saved,
	})
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, event)
}

func (h *apiHandlers) recommendations(w http.ResponseWriter, r *http.Request) {
	limit := h.cfg.Limits.RecommendDefault
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			h.writeFailure(w, errBadRequest)
			return
		}
		limit = parsed
	}
	if limit > h.cfg.Limits.PageMax {
		limit = h.cfg.Limits.PageMax
	}
	principal := httpinfra.PrincipalFromContext(r.Context())
	items, err := h.recommend.Compose(r.Context(), principal, limit)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *apiHandlers) trendingTopics(w http.ResponseWriter, r *http.Request) {
	windowDays := h.cfg.Batch.WindowDays
	topN := h.cfg.Batch.TrendingTopN
	if raw := r.URL.Query().Get("window_days"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			windowDays = parsed
		}
	}
	if raw := r.URL.Query().Get("top_n"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			topN = parsed
		}
	}

	cacheKey := "trending:" + strconv.Itoa(windowDays) + ":" + strconv.Itoa(topN)
	if cached, err := h.cache.Get(r.Context(), cacheKey); err == nil && cached != nil {
		var topics []domain.TrendingTopic
		if json.Unmarshal(cached, &topics) == nil {
			httpinfra.WriteJSON(w, http.StatusOK, map[string]any{"topics": topics})
			return
		}
	}

	topics, err := h.trending.ExtractTrending(r.Context(), windowDays, topN)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	if topics == nil {
		topics = []domain.TrendingTopic{}
	}
	if payload, err := json.Marshal(topics); err == nil {
		ttl := time.Duration(h.cfg.Batch.TrendingTTLSec) * time.Second
		if err := h.cache.Set(r.Context(), cacheKey, payload, ttl); err != nil {
			h.log.Warn().Err(err).Msg("не удалось закэшировать трендовые темы")
		}
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]any{"topics": topics})
}

type ingestRequest struct {
	ID          string    `json:"id,omitempty"`
	Title       string    `json:"title"`
	Source      string    `json:"source,omitempty"`
	Author      string    `json:"author,omitempty"`
	AccessTier  string    `json:"access_tier"`
	Categories  []string  `json:"categories,omitempty"`
	Regions     []string  `json:"regions,omitempty"`
	Topics      []string  `json:"topics,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

func (h *apiHandlers) ingestContent(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeFailure(w, errBadRequest)
		return
	}
	tier, ok := domain.ParseContentTier(req.AccessTier)
	if !ok || req.Title == "" {
		h.writeFailure(w, errBadRequest)
		return
	}
	if req.PublishedAt.IsZero() {
		req.PublishedAt = time.Now().UTC()
	}
	item, err := h.linker.Ingest(r.Context(), domain.ContentItem{
		ID:          req.ID,
		Title:       req.Title,
		Source:      req.Source,
		Author:      req.Author,
		AccessTier:  tier,
		Categories:  req.Categories,
		Regions:     req.Regions,
		Topics:      req.Topics,
		PublishedAt: req.PublishedAt,
	})
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusCreated, item)
}

type recomputeRequest struct {
	WindowDays int `json:"window_days,omitempty"`
}

func (h *apiHandlers) recomputePopularity(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req recomputeRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeFailure(w, errBadRequest)
			return
		}
	}
	windowDays := req.WindowDays
	if windowDays <= 0 {
		windowDays = h.cfg.Batch.WindowDays
	}
	job := domain.RecomputeJob{
		ID:          uuid.NewString(),
		WindowDays:  windowDays,
		RequestedAt: time.Now().UTC(),
		Cause:       domain.RecomputeCauseManual,
	}
	if err := h.queue.Enqueue(r.Context(), job); err != nil {
		h.writeFailure(w, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.ID,
		"status": "enqueued",
	})
}

type addMemberRequest struct {
	PrincipalID string `json:"principal_id"`
	Role        string `json:"role"`
}

func (h *apiHandlers) addMember(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req addMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeFailure(w, errBadRequest)
		return
	}
	role, ok := domain.ParseOrgRole(req.Role)
	if !ok || req.PrincipalID == "" {
		h.writeFailure(w, errBadRequest)
		return
	}
	err := h.orgs.AddMember(r.Context(), domain.OrganizationMembership{
		OrganizationID: chi.URLParam(r, "orgID"),
		PrincipalID:    req.PrincipalID,
		Role:           role,
	})
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusCreated, map[string]string{"status": "added"})
}

func (h *apiHandlers) listMembers(w http.ResponseWriter, r *http.Request) {
	limit := h.cfg.Limits.PageDefault
	offset := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > h.cfg.Limits.PageMax {
		limit = h.cfg.Limits.PageMax
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	members, err := h.orgs.ListMembers(r.Context(), chi.URLParam(r, "orgID"), limit, offset)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]any{"members": members})
}

type changeRoleRequest struct {
	Role string `json:"role"`
}

func (h *apiHandlers) changeRole(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req changeRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeFailure(w, errBadRequest)
		return
	}
	role, ok := domain.ParseOrgRole(req.Role)
	if !ok {
		h.writeFailure(w, errBadRequest)
		return
	}
	err := h.orgs.ChangeRole(r.Context(), chi.URLParam(r, "orgID"), chi.URLParam(r, "principalID"), role)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *apiHandlers) removeMember(w http.ResponseWriter, r *http.Request) {
	err := h.orgs.RemoveMember(r.Context(), chi.URLParam(r, "orgID"), chi.URLParam(r, "principalID"))
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
