package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"tracechain/internal/adapters/passports"
	"tracechain/internal/blob"
	"tracechain/internal/core"
	"tracechain/pkg/domain"
)

type mutationResponse struct {
	Lot      string        `json:"lot,omitempty"`
	Warnings []warningView `json:"warnings"`
}

func mutated(lot string, res core.Result) mutationResponse {
	return mutationResponse{Lot: lot, Warnings: warningsOf(res.Warnings())}
}

type assignRoleRequest struct {
	Role string `json:"role"`
}

func (s *Server) handleAssignRole(w http.ResponseWriter, r *http.Request) {
	var req assignRoleRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "BAD_BODY", err.Error(), nil)
		return
	}
	role, ok := domain.ParseRole(req.Role)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "INVALID_ROLE", "unknown role "+strconv.Quote(req.Role), nil)
		return
	}
	identity := chi.URLParam(r, "identity")
	if _, err := s.svc.AssignRole(r.Context(), CallerFrom(r.Context()), identity, role); err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"identity": identity, "role": role.String()})
}

func (s *Server) handleGetRole(w http.ResponseWriter, r *http.Request) {
	identity := chi.URLParam(r, "identity")
	role := s.svc.GetRole(r.Context(), identity)
	writeJSON(w, http.StatusOK, map[string]string{"identity": identity, "role": role.String()})
}

func (s *Server) handleListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := s.svc.ListRoles(r.Context())
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	if roles == nil {
		roles = []core.RoleAssignment{}
	}
	writeJSON(w, http.StatusOK, roles)
}

type registerRequest struct {
	Lot            string `json:"lot"`
	Name           string `json:"name"`
	Origin         string `json:"origin"`
	Certifications string `json:"certifications"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "BAD_BODY", err.Error(), nil)
		return
	}
	product, _, err := s.svc.Register(r.Context(), CallerFrom(r.Context()), req.Lot, req.Name, req.Origin, req.Certifications)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, product)
}

func (s *Server) handleListLots(w http.ResponseWriter, r *http.Request) {
	lots, err := s.svc.ListLots(r.Context())
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	if lots == nil {
		lots = []string{}
	}
	writeJSON(w, http.StatusOK, lots)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	entries, err := s.svc.Leaderboard(r.Context(), limit)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	if entries == nil {
		entries = []core.LeaderboardEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleLookupLot(w http.ResponseWriter, r *http.Request) {
	view, err := s.svc.ConsumerLookupByLot(r.Context(), chi.URLParam(r, "lot"))
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleLookupToken(w http.ResponseWriter, r *http.Request) {
	view, err := s.svc.ConsumerLookupByToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := s.svc.GetProduct(r.Context(), chi.URLParam(r, "lot"))
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (s *Server) handleExists(w http.ResponseWriter, r *http.Request) {
	lot := chi.URLParam(r, "lot")
	writeJSON(w, http.StatusOK, map[string]any{"lot": lot, "exists": s.svc.Exists(r.Context(), lot)})
}

type thresholdsRequest struct {
	Min *int64 `json:"min"`
	Max *int64 `json:"max"`
}

func (s *Server) handleSetThresholds(w http.ResponseWriter, r *http.Request) {
	var req thresholdsRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "BAD_BODY", err.Error(), nil)
		return
	}
	if req.Min == nil || req.Max == nil {
		writeError(w, r, http.StatusBadRequest, "BAD_BODY", "min and max are required", nil)
		return
	}
	lot := chi.URLParam(r, "lot")
	res, err := s.svc.SetThresholds(r.Context(), CallerFrom(r.Context()), lot, *req.Min, *req.Max)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mutated(lot, res))
}

type stageRequest struct {
	Stage string `json:"stage"`
}

func (s *Server) handleUpdateStage(w http.ResponseWriter, r *http.Request) {
	var req stageRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "BAD_BODY", err.Error(), nil)
		return
	}
	target, ok := domain.ParseStage(req.Stage)
	if !ok {
		writeError(w, r, http.StatusUnprocessableEntity, "UNSUPPORTED_STAGE", "unknown stage "+strconv.Quote(req.Stage), nil)
		return
	}
	lot := chi.URLParam(r, "lot")
	res, err := s.svc.UpdateStage(r.Context(), CallerFrom(r.Context()), lot, target)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mutated(lot, res))
}

type observationRequest struct {
	Temperature *int64 `json:"temperature"`
	Note        string `json:"note"`
}

func (s *Server) handleCaptureObservation(w http.ResponseWriter, r *http.Request) {
	var req observationRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "BAD_BODY", err.Error(), nil)
		return
	}
	if req.Temperature == nil {
		writeError(w, r, http.StatusBadRequest, "BAD_BODY", "temperature is required", nil)
		return
	}
	lot := chi.URLParam(r, "lot")
	res, err := s.svc.CaptureObservation(r.Context(), CallerFrom(r.Context()), lot, *req.Temperature, req.Note)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, mutated(lot, res))
}

func (s *Server) handleGetObservations(w http.ResponseWriter, r *http.Request) {
	obs, err := s.svc.GetObservations(r.Context(), chi.URLParam(r, "lot"))
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	if obs == nil {
		obs = []core.Observation{}
	}
	writeJSON(w, http.StatusOK, obs)
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	summary, err := s.svc.Analytics(r.Context(), chi.URLParam(r, "lot"))
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleCompliance(w http.ResponseWriter, r *http.Request) {
	lot := chi.URLParam(r, "lot")
	ok, err := s.svc.IsCompliant(r.Context(), lot)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"lot": lot, "compliant": ok})
}

type badgeRequest struct {
	Badge string `json:"badge"`
}

func (s *Server) handleAwardBadge(w http.ResponseWriter, r *http.Request) {
	var req badgeRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "BAD_BODY", err.Error(), nil)
		return
	}
	lot := chi.URLParam(r, "lot")
	res, err := s.svc.AwardBadge(r.Context(), CallerFrom(r.Context()), lot, req.Badge)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, mutated(lot, res))
}

func (s *Server) handleGetBadges(w http.ResponseWriter, r *http.Request) {
	badges, err := s.svc.GetBadges(r.Context(), chi.URLParam(r, "lot"))
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	if badges == nil {
		badges = []string{}
	}
	writeJSON(w, http.StatusOK, badges)
}

func (s *Server) handleHasBadge(w http.ResponseWriter, r *http.Request) {
	lot, badge := chi.URLParam(r, "lot"), chi.URLParam(r, "badge")
	has, err := s.svc.HasBadge(r.Context(), lot, badge)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"lot": lot, "badge": badge, "awarded": has})
}

func (s *Server) handleGenerateToken(w http.ResponseWriter, r *http.Request) {
	lot := chi.URLParam(r, "lot")
	token, _, err := s.svc.GenerateToken(r.Context(), CallerFrom(r.Context()), lot)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"lot": lot, "token": token})
}

func (s *Server) handlePublishPassport(w http.ResponseWriter, r *http.Request) {
	receipt, err := s.svc.PublishPassport(r.Context(), chi.URLParam(r, "lot"))
	if err != nil {
		writePassportError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

func (s *Server) handleListPassports(w http.ResponseWriter, r *http.Request) {
	infos, err := s.svc.ListPassports(r.Context(), chi.URLParam(r, "lot"))
	if err != nil {
		writePassportError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, infos)
}

type passportResponse struct {
	Blob     blob.Info     `json:"blob"`
	Passport core.Passport `json:"passport"`
}

func (s *Server) handleReadPassport(w http.ResponseWriter, r *http.Request) {
	passport, info, err := s.svc.ReadPassport(r.Context(), chi.URLParam(r, "lot"), chi.URLParam(r, "id"))
	if err != nil {
		writePassportError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, passportResponse{Blob: info, Passport: passport})
}

func writePassportError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, core.ErrNoBlobStore):
		writeError(w, r, http.StatusNotImplemented, "NO_BLOB_STORE", err.Error(), nil)
	case errors.Is(err, blob.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "PASSPORT_NOT_FOUND", "passport not found", nil)
	default:
		writeLedgerError(w, r, err)
	}
}

func (s *Server) handleRecentEvents(w http.ResponseWriter, r *http.Request) {
	if s.ring == nil {
		writeJSON(w, http.StatusOK, []domain.Event{})
		return
	}
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.ring.Recent(limit))
}

// queryInt parses an optional non-negative integer query parameter.
func queryInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeError(w, r, http.StatusBadRequest, "BAD_QUERY", name+" must be a non-negative integer", nil)
		return 0, false
	}
	return n, true
}

type passportJobRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleEnqueuePassport(w http.ResponseWriter, r *http.Request) {
	var req passportJobRequest
	if r.ContentLength != 0 {
		if err := readJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, "BAD_BODY", err.Error(), nil)
			return
		}
	}
	lot := chi.URLParam(r, "lot")
	if !s.svc.Exists(r.Context(), lot) {
		writeLedgerError(w, r, domain.NewLedgerError(domain.ErrUnknownLot, "enqueue_passport", lot, ""))
		return
	}
	job, err := s.jobs.Enqueue(r.Context(), lot, CallerFrom(r.Context()), req.Reason)
	if err != nil {
		if errors.Is(err, passports.ErrQueueFull) {
			writeError(w, r, http.StatusServiceUnavailable, "QUEUE_FULL", err.Error(), nil)
			return
		}
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleGetPassportJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.jobs.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", "passport job not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, job)
}
