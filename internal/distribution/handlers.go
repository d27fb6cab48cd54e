package distribution

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/revloop/distribution-engine/internal/exposure"
	"github.com/revloop/distribution-engine/internal/model"
	"github.com/revloop/distribution-engine/internal/money"
	"github.com/revloop/distribution-engine/internal/period"
	"github.com/revloop/distribution-engine/internal/store"
	"github.com/revloop/distribution-engine/internal/waterfall"
)

// Amounts cross the HTTP boundary as decimal strings ("150000.00"); the
// engine converts them to integer minor units at the edge and never sees
// floats.

// CreateDealRequest is the JSON body for POST /api/v1/deals.
type CreateDealRequest struct {
	Name            string `json:"name"`
	Currency        string `json:"currency"`
	FundingGoal     string `json:"funding_goal"`
	RevenueShareBps int64  `json:"revenue_share_bps"`
}

// CreatePositionRequest is the JSON body for POST /api/v1/deals/{id}/positions.
type CreatePositionRequest struct {
	InvestorID          string `json:"investor_id"`
	Principal           string `json:"principal"`
	TargetMultiplierBps int64  `json:"target_multiplier_bps"`
}

// SubmitReportRequest is the JSON body for POST /api/v1/deals/{id}/reports.
type SubmitReportRequest struct {
	PeriodKey       string `json:"period_key"`
	ReportedRevenue string `json:"reported_revenue"`
}

// DefaultDealRequest is the JSON body for POST /api/v1/deals/{id}/default.
type DefaultDealRequest struct {
	Reason string `json:"reason"`
}

// --- HTTP Handlers ---

// HandleCreateDeal handles POST /api/v1/deals
func (s *Service) HandleCreateDeal(w http.ResponseWriter, r *http.Request) {
	var req CreateDealRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	goal, err := money.Parse(req.FundingGoal, req.Currency)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	deal, err := s.CreateDeal(r.Context(), req.Name, req.Currency, goal, req.RevenueShareBps)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, deal)
}

// HandleOpenDeal handles POST /api/v1/deals/{dealID}/open
func (s *Service) HandleOpenDeal(w http.ResponseWriter, r *http.Request) {
	deal, err := s.OpenDeal(r.Context(), chi.URLParam(r, "dealID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deal)
}

// HandleMarkFunded handles POST /api/v1/deals/{dealID}/funded
func (s *Service) HandleMarkFunded(w http.ResponseWriter, r *http.Request) {
	deal, err := s.MarkFunded(r.Context(), chi.URLParam(r, "dealID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deal)
}

// HandleMarkDefaulted handles POST /api/v1/deals/{dealID}/default
func (s *Service) HandleMarkDefaulted(w http.ResponseWriter, r *http.Request) {
	var req DefaultDealRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Reason == "" {
		writeError(w, "reason is required", http.StatusBadRequest)
		return
	}

	deal, err := s.MarkDefaulted(r.Context(), chi.URLParam(r, "dealID"), req.Reason)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deal)
}

// HandleGetDeal handles GET /api/v1/deals/{dealID}
func (s *Service) HandleGetDeal(w http.ResponseWriter, r *http.Request) {
	deal, err := s.store.GetDeal(r.Context(), chi.URLParam(r, "dealID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deal)
}

// HandleListDeals handles GET /api/v1/deals
func (s *Service) HandleListDeals(w http.ResponseWriter, r *http.Request) {
	deals, err := s.store.ListDeals(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if deals == nil {
		deals = []model.Deal{}
	}
	writeJSON(w, http.StatusOK, deals)
}

// HandleCreatePosition handles POST /api/v1/deals/{dealID}/positions
func (s *Service) HandleCreatePosition(w http.ResponseWriter, r *http.Request) {
	dealID := chi.URLParam(r, "dealID")

	var req CreatePositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	deal, err := s.store.GetDeal(r.Context(), dealID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	principal, err := money.Parse(req.Principal, deal.Currency)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pos, err := s.CreatePosition(r.Context(), dealID, req.InvestorID, principal, req.TargetMultiplierBps)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, pos)
}

// HandleSubmitReport handles POST /api/v1/deals/{dealID}/reports
// Applies the report and returns the payout batch; safely retryable.
func (s *Service) HandleSubmitReport(w http.ResponseWriter, r *http.Request) {
	dealID := chi.URLParam(r, "dealID")

	var req SubmitReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	deal, err := s.store.GetDeal(r.Context(), dealID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	revenue, err := money.Parse(req.ReportedRevenue, deal.Currency)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	result, err := s.ApplyRevenueReport(r.Context(), dealID, req.PeriodKey, revenue)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleListReports handles GET /api/v1/deals/{dealID}/reports
func (s *Service) HandleListReports(w http.ResponseWriter, r *http.Request) {
	reports, err := s.store.ListRevenueReports(r.Context(), chi.URLParam(r, "dealID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if reports == nil {
		reports = []model.RevenueReport{}
	}
	writeJSON(w, http.StatusOK, reports)
}

// HandleListDistributions handles GET /api/v1/deals/{dealID}/distributions
func (s *Service) HandleListDistributions(w http.ResponseWriter, r *http.Request) {
	dists, err := s.store.ListDistributionsByDeal(r.Context(), chi.URLParam(r, "dealID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if dists == nil {
		dists = []model.Distribution{}
	}
	writeJSON(w, http.StatusOK, dists)
}

// HandleGetDistribution handles GET /api/v1/deals/{dealID}/distributions/{periodKey}
func (s *Service) HandleGetDistribution(w http.ResponseWriter, r *http.Request) {
	dist, err := s.store.GetDistribution(r.Context(),
		chi.URLParam(r, "dealID"), chi.URLParam(r, "periodKey"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dist)
}

// HandleGetPositionSummary handles
// GET /api/v1/investors/{investorID}/deals/{dealID}/position
func (s *Service) HandleGetPositionSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.PositionSummary(r.Context(),
		chi.URLParam(r, "investorID"), chi.URLParam(r, "dealID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// --- Response helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps engine errors to HTTP status codes: bad input → 400,
// missing records → 404, state conflicts → 409, internal invariants → 500.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrInvalidDeal),
		errors.Is(err, ErrInvalidPosition),
		errors.Is(err, ErrNegativeRevenue),
		errors.Is(err, period.ErrInvalidKey),
		errors.Is(err, money.ErrNegativeAmount),
		errors.Is(err, money.ErrCurrencyMismatch),
		errors.Is(err, money.ErrFractionalMinorUnit):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrDealNotRepaying),
		errors.Is(err, ErrDealNotFundraising),
		errors.Is(err, ErrInvalidTransition),
		errors.Is(err, store.ErrConflict),
		errors.Is(err, exposure.ErrPerDealLimitExceeded),
		errors.Is(err, exposure.ErrTotalLimitExceeded):
		writeError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, waterfall.ErrConservation):
		writeError(w, "internal allocation error", http.StatusInternalServerError)
	default:
		writeError(w, err.Error(), http.StatusInternalServerError)
	}
}

// Routes mounts all engine endpoints on the given router.
func (s *Service) Routes(r chi.Router) {
	r.Get("/deals", s.HandleListDeals)
	r.Post("/deals", s.HandleCreateDeal)
	r.Get("/deals/{dealID}", s.HandleGetDeal)
	r.Post("/deals/{dealID}/open", s.HandleOpenDeal)
	r.Post("/deals/{dealID}/funded", s.HandleMarkFunded)
	r.Post("/deals/{dealID}/default", s.HandleMarkDefaulted)
	r.Post("/deals/{dealID}/positions", s.HandleCreatePosition)
	r.Post("/deals/{dealID}/reports", s.HandleSubmitReport)
	r.Get("/deals/{dealID}/reports", s.HandleListReports)
	r.Get("/deals/{dealID}/distributions", s.HandleListDistributions)
	r.Get("/deals/{dealID}/distributions/{periodKey}", s.HandleGetDistribution)
	r.Get("/investors/{investorID}/deals/{dealID}/position", s.HandleGetPositionSummary)
}
