package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/go-chi/chi/v5"
	"github.com/mr-tron/base58"

	"github.com/haiolabs/vesting/engine/pkg/engine"
	"github.com/haiolabs/vesting/engine/pkg/vesting"
)

// CallerKeyHeader carries the caller's base58 public key. The upstream
// gateway authenticates it; the service only authorizes.
const CallerKeyHeader = "X-Caller-Key"

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func isExpected(err error) bool {
	return errors.Is(err, vesting.ErrConfigNotInitialized)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("failed to write response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, vesting.ErrScheduleNotFound),
		errors.Is(err, vesting.ErrAccountNotFound):
		status = http.StatusNotFound
	default:
		switch vesting.KindOf(err) {
		case vesting.KindAuthorization:
			status = http.StatusUnauthorized
		case vesting.KindValidation, vesting.KindResource:
			status = http.StatusBadRequest
		case vesting.KindState:
			status = http.StatusConflict
		case vesting.KindArithmetic:
			status = http.StatusUnprocessableEntity
		}
	}
	if status == http.StatusInternalServerError {
		s.log.Error("server: request failed", "error", err)
	}
	s.writeJSON(w, status, errorResponse{Error: vesting.Code(err), Message: err.Error()})
}

// callerKey parses the caller identity header.
func callerKey(r *http.Request) (solana.PublicKey, error) {
	raw := r.Header.Get(CallerKeyHeader)
	if raw == "" {
		return solana.PublicKey{}, errors.New("missing " + CallerKeyHeader + " header")
	}
	b, err := base58.Decode(raw)
	if err != nil || len(b) != solana.PublicKeyLength {
		return solana.PublicKey{}, errors.New("malformed " + CallerKeyHeader + " header")
	}
	return solana.PublicKeyFromBytes(b), nil
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:   "malformed_body",
			Message: "failed to decode request body: " + err.Error(),
		})
		return false
	}
	return true
}

func (s *Server) caller(w http.ResponseWriter, r *http.Request) (solana.PublicKey, bool) {
	key, err := callerKey(r)
	if err != nil {
		s.writeJSON(w, http.StatusUnauthorized, errorResponse{
			Error:   "missing_caller_key",
			Message: err.Error(),
		})
		return solana.PublicKey{}, false
	}
	return key, true
}

func scheduleID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid schedule id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	if err := s.engine.Initialize(r.Context(), caller); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createScheduleRequest struct {
	ScheduleID       uint64 `json:"schedule_id"`
	Mint             string `json:"mint"`
	FundingAccount   string `json:"funding_account"`
	TotalAmount      uint64 `json:"total_amount"`
	CliffTime        int64  `json:"cliff_time"`
	VestingStartTime int64  `json:"vesting_start_time"`
	VestingEndTime   int64  `json:"vesting_end_time"`
	SourceCategory   string `json:"source_category"`
}

type scheduleView struct {
	ScheduleID       uint64 `json:"schedule_id"`
	Mint             string `json:"mint"`
	TokenVault       string `json:"token_vault"`
	Depositor        string `json:"depositor"`
	TotalAmount      uint64 `json:"total_amount"`
	CliffTime        int64  `json:"cliff_time"`
	VestingStartTime int64  `json:"vesting_start_time"`
	VestingEndTime   int64  `json:"vesting_end_time"`
	AmountReleased   uint64 `json:"amount_released"`
	SourceCategory   string `json:"source_category"`
}

func viewSchedule(s *vesting.Schedule) scheduleView {
	return scheduleView{
		ScheduleID:       s.ScheduleID,
		Mint:             s.Mint.String(),
		TokenVault:       s.TokenVault.String(),
		Depositor:        s.Depositor.String(),
		TotalAmount:      s.TotalAmount,
		CliffTime:        s.CliffTime,
		VestingStartTime: s.VestingStartTime,
		VestingEndTime:   s.VestingEndTime,
		AmountReleased:   s.AmountReleased,
		SourceCategory:   s.SourceCategory.String(),
	}
}

func (s *Server) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req createScheduleRequest
	if !s.decode(w, r, &req) {
		return
	}

	mint, err := solana.PublicKeyFromBase58(req.Mint)
	if err != nil {
		s.writeError(w, vesting.ErrMintMismatch)
		return
	}
	funding, err := solana.PublicKeyFromBase58(req.FundingAccount)
	if err != nil {
		s.writeError(w, vesting.ErrAccountNotFound)
		return
	}
	category, err := vesting.ParseSourceCategory(req.SourceCategory)
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: %s", vesting.ErrInvalidCategory, req.SourceCategory))
		return
	}

	created, err := s.engine.CreateSchedule(r.Context(), caller, engine.CreateScheduleParams{
		ScheduleID:       req.ScheduleID,
		Mint:             mint,
		FundingAccount:   funding,
		TotalAmount:      req.TotalAmount,
		CliffTime:        req.CliffTime,
		VestingStartTime: req.VestingStartTime,
		VestingEndTime:   req.VestingEndTime,
		SourceCategory:   category,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, viewSchedule(created))
}

type crankRequest struct {
	Pairs []struct {
		ScheduleID uint64 `json:"schedule_id"`
		Vault      string `json:"vault"`
	} `json:"pairs"`
	CollectorAccount string `json:"collector_account"`
}

func (s *Server) handleCrank(w http.ResponseWriter, r *http.Request) {
	var req crankRequest
	if !s.decode(w, r, &req) {
		return
	}
	collectorAccount, err := solana.PublicKeyFromBase58(req.CollectorAccount)
	if err != nil {
		s.writeError(w, vesting.ErrAccountNotFound)
		return
	}
	pairs := make([]engine.Pair, 0, len(req.Pairs))
	for _, p := range req.Pairs {
		vault, err := solana.PublicKeyFromBase58(p.Vault)
		if err != nil {
			s.writeError(w, vesting.ErrInvalidPair)
			return
		}
		pairs = append(pairs, engine.Pair{ScheduleID: p.ScheduleID, Vault: vault})
	}

	res, err := s.engine.Crank(r.Context(), pairs, collectorAccount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

type updateCollectorRequest struct {
	Collector string `json:"collector"`
}

func (s *Server) handleUpdateCollector(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req updateCollectorRequest
	if !s.decode(w, r, &req) {
		return
	}
	collector, err := solana.PublicKeyFromBase58(req.Collector)
	if err != nil {
		s.writeError(w, vesting.ErrInvalidCollector)
		return
	}
	if err := s.engine.UpdateCollector(r.Context(), caller, collector); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCloseSchedule(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	id, ok := scheduleID(w, r)
	if !ok {
		return
	}
	if err := s.engine.CloseSchedule(r.Context(), caller, id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type configView struct {
	Admin                    string  `json:"admin"`
	DistributionCollector    string  `json:"distribution_collector,omitempty"`
	PendingCollector         *string `json:"pending_collector,omitempty"`
	PendingCollectorDeadline *int64  `json:"pending_collector_deadline,omitempty"`
	TotalSchedules           uint64  `json:"total_schedules"`
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.engine.Config(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	view := configView{
		Admin:          cfg.Admin.String(),
		TotalSchedules: cfg.TotalSchedules,
	}
	if cfg.CollectorSet() {
		view.DistributionCollector = cfg.DistributionCollector.String()
	}
	if cfg.HasPending() {
		pending := cfg.PendingCollector.String()
		view.PendingCollector = &pending
		view.PendingCollectorDeadline = cfg.PendingCollectorDeadline
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := scheduleID(w, r)
	if !ok {
		return
	}
	schedule, err := s.engine.Schedule(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, viewSchedule(schedule))
}

func (s *Server) handleGetScheduleRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := scheduleID(w, r)
	if !ok {
		return
	}
	record, err := s.engine.ScheduleRecord(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"record": base64.StdEncoding.EncodeToString(record),
	})
}
