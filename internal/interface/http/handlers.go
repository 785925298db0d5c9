package http

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/accountable-hub/progression/internal/domain/badge"
	"github.com/accountable-hub/progression/internal/domain/level"
	"github.com/accountable-hub/progression/internal/domain/points"
	"github.com/accountable-hub/progression/internal/domain/shared"
	"github.com/accountable-hub/progression/internal/domain/xp"
)

// defaultXPHistoryLimit applies when limit is omitted.
const defaultXPHistoryLimit = 50

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker == nil {
		writeJSON(w, r, http.StatusOK, map[string]interface{}{
			"healthy": true,
			"uptime":  s.Uptime().Round(time.Second).String(),
			"version": s.config.Version,
		})
		return
	}

	status := s.deps.HealthChecker.Check(r.Context())
	if !status.Healthy {
		writeJSON(w, r, http.StatusServiceUnavailable, status)
		return
	}
	writeJSON(w, r, http.StatusOK, status)
}

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD
// ══════════════════════════════════════════════════════════════════════════════

// handleGetLeaderboard handles GET /api/v1/leaderboard?page=&page_size=
func (s *Server) handleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	page, err := getQueryParamInt(r, "page", 1)
	if err != nil {
		s.writeDomainError(w, r, "Rank", err)
		return
	}
	pageSize, err := getQueryParamInt(r, "page_size", s.config.LeaderboardPageSize)
	if err != nil {
		s.writeDomainError(w, r, "Rank", err)
		return
	}

	result, err := s.deps.Leaderboard.Rank(r.Context(), page, pageSize)
	if err != nil {
		s.writeDomainError(w, r, "Rank", err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// PositionResponse is the body of GET /users/{user_id}/position.
type PositionResponse struct {
	UserID   string `json:"user_id"`
	Position int    `json:"position"`
}

func (s *Server) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]

	pos, err := s.deps.Leaderboard.PositionOf(r.Context(), userID)
	if err != nil {
		s.writeDomainError(w, r, "PositionOf", err)
		return
	}
	writeJSON(w, r, http.StatusOK, PositionResponse{UserID: userID, Position: pos})
}

// ══════════════════════════════════════════════════════════════════════════════
// POINTS
// ══════════════════════════════════════════════════════════════════════════════

// AmountRequest is the body of point and counter mutations.
type AmountRequest struct {
	Amount int64 `json:"amount"`
}

// AccountResponse describes a user's points account.
type AccountResponse struct {
	UserID      string `json:"user_id"`
	Balance     int64  `json:"balance"`
	TotalEarned int64  `json:"total_earned"`
	TotalSpent  int64  `json:"total_spent"`
}

func newAccountResponse(acc *points.Account) AccountResponse {
	return AccountResponse{
		UserID:      acc.UserID,
		Balance:     acc.Balance,
		TotalEarned: acc.TotalEarned,
		TotalSpent:  acc.TotalSpent,
	}
}

// BalanceResponse is returned by point mutations.
type BalanceResponse struct {
	UserID  string `json:"user_id"`
	Balance int64  `json:"balance"`
}

func (s *Server) handleGetPoints(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]

	acc, err := s.deps.Points.GetAccount(r.Context(), userID)
	if shared.IsNotFound(err) {
		writeJSON(w, r, http.StatusOK, AccountResponse{UserID: userID})
		return
	}
	if err != nil {
		s.writeDomainError(w, r, "GetAccount", err)
		return
	}
	writeJSON(w, r, http.StatusOK, newAccountResponse(acc))
}

func (s *Server) handleAddPoints(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]

	var req AmountRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeDomainError(w, r, "AddPoints", err)
		return
	}

	balance, err := s.deps.Points.AddPoints(r.Context(), userID, req.Amount)
	if err != nil {
		s.writeDomainError(w, r, "AddPoints", err)
		return
	}
	writeJSON(w, r, http.StatusOK, BalanceResponse{UserID: userID, Balance: balance})
}

func (s *Server) handleSubtractPoints(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]

	var req AmountRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeDomainError(w, r, "SubtractPoints", err)
		return
	}

	balance, err := s.deps.Points.SubtractPoints(r.Context(), userID, req.Amount)
	if err != nil {
		s.writeDomainError(w, r, "SubtractPoints", err)
		return
	}
	writeJSON(w, r, http.StatusOK, BalanceResponse{UserID: userID, Balance: balance})
}

// RedeemRequest is the body of POST /users/{user_id}/redemptions.
type RedeemRequest struct {
	RewardLabel string `json:"reward_label"`
	PointsSpent int64  `json:"points_spent"`
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]

	var req RedeemRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeDomainError(w, r, "RecordRedemption", err)
		return
	}

	redemption, err := s.deps.Points.RecordRedemption(r.Context(), userID, req.RewardLabel, req.PointsSpent)
	if err != nil {
		s.writeDomainError(w, r, "RecordRedemption", err)
		return
	}
	writeJSON(w, r, http.StatusCreated, redemption)
}

func (s *Server) handleListRedemptions(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]

	list, err := s.deps.Points.Redemptions(r.Context(), userID)
	if err != nil {
		s.writeDomainError(w, r, "Redemptions", err)
		return
	}
	if list == nil {
		list = []points.Redemption{}
	}
	writeJSON(w, r, http.StatusOK, list)
}

// ══════════════════════════════════════════════════════════════════════════════
// XP & LEVELS
// ══════════════════════════════════════════════════════════════════════════════

// AddXPRequest is the body of POST /users/{user_id}/xp.
type AddXPRequest struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

// AddXPResponse reports the level state after a grant.
type AddXPResponse struct {
	State    *level.State `json:"state"`
	EntryID  string       `json:"entry_id"`
	LevelUps int          `json:"level_ups"`
}

func (s *Server) handleAddXP(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]

	var req AddXPRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeDomainError(w, r, "AddXP", err)
		return
	}

	result, err := s.deps.Levels.AddXP(r.Context(), userID, req.Amount, req.Reason)
	if err != nil {
		s.writeDomainError(w, r, "AddXP", err)
		return
	}
	writeJSON(w, r, http.StatusOK, AddXPResponse{
		State:    result.State,
		EntryID:  result.Entry.ID,
		LevelUps: result.LevelUps,
	})
}

func (s *Server) handleGetLevel(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Levels.GetState(r.Context(), mux.Vars(r)["user_id"])
	if err != nil {
		s.writeDomainError(w, r, "GetState", err)
		return
	}
	writeJSON(w, r, http.StatusOK, st)
}

// XPHistoryResponse is the body of GET /users/{user_id}/xp.
type XPHistoryResponse struct {
	UserID  string     `json:"user_id"`
	TotalXP int64      `json:"total_xp"`
	Entries []xp.Entry `json:"entries"`
}

func (s *Server) handleListXP(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]

	limit, err := getQueryParamInt(r, "limit", defaultXPHistoryLimit)
	if err != nil {
		s.writeDomainError(w, r, "ListXP", err)
		return
	}

	entries, err := s.deps.XPHistory.List(r.Context(), userID, limit)
	if err != nil {
		s.writeDomainError(w, r, "ListXP", err)
		return
	}
	if entries == nil {
		entries = []xp.Entry{}
	}
	total, err := s.deps.XPHistory.Total(r.Context(), userID)
	if err != nil {
		s.writeDomainError(w, r, "ListXP", err)
		return
	}
	writeJSON(w, r, http.StatusOK, XPHistoryResponse{UserID: userID, TotalXP: total, Entries: entries})
}

// AddRewardRequest is the body of POST /users/{user_id}/rewards.
type AddRewardRequest struct {
	Type  level.RewardType `json:"type"`
	Value string           `json:"value"`
}

func (s *Server) handleAddReward(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]

	var req AddRewardRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeDomainError(w, r, "AddReward", err)
		return
	}

	st, err := s.deps.Levels.AddReward(r.Context(), userID, req.Type, req.Value)
	if err != nil {
		s.writeDomainError(w, r, "AddReward", err)
		return
	}
	writeJSON(w, r, http.StatusOK, st)
}

// ══════════════════════════════════════════════════════════════════════════════
// STREAKS
// ══════════════════════════════════════════════════════════════════════════════

// CheckInRequest is the optional body of POST /users/{user_id}/checkins.
// Without At the check-in is stamped with the server clock.
type CheckInRequest struct {
	At *time.Time `json:"at,omitempty"`
}

func (s *Server) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]

	var req CheckInRequest
	if err := decodeBody(r, &req); err != nil && !errors.Is(err, io.EOF) {
		s.writeDomainError(w, r, "RecordCheckIn", err)
		return
	}
	var at time.Time
	if req.At != nil {
		at = req.At.UTC()
	}

	st, err := s.deps.Streaks.RecordCheckIn(r.Context(), userID, at)
	if err != nil {
		s.writeDomainError(w, r, "RecordCheckIn", err)
		return
	}
	writeJSON(w, r, http.StatusOK, st)
}

func (s *Server) handleGetStreak(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Streaks.GetState(r.Context(), mux.Vars(r)["user_id"])
	if err != nil {
		s.writeDomainError(w, r, "GetStreak", err)
		return
	}
	writeJSON(w, r, http.StatusOK, st)
}

func (s *Server) handleResetStreak(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Streaks.ResetStreak(r.Context(), mux.Vars(r)["user_id"])
	if err != nil {
		s.writeDomainError(w, r, "ResetStreak", err)
		return
	}
	writeJSON(w, r, http.StatusOK, st)
}

// ══════════════════════════════════════════════════════════════════════════════
// BADGES
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleListBadges(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, s.deps.Badges.Catalog().All())
}

func (s *Server) handleListAwards(w http.ResponseWriter, r *http.Request) {
	awards, err := s.deps.Badges.Awards(r.Context(), mux.Vars(r)["user_id"])
	if err != nil {
		s.writeDomainError(w, r, "Awards", err)
		return
	}
	if awards == nil {
		awards = []badge.Award{}
	}
	writeJSON(w, r, http.StatusOK, awards)
}

// CounterRequest carries the current value of a badge counter.
type CounterRequest struct {
	Counter int64 `json:"counter"`
}

// EvaluateResponse lists the tiers newly awarded by one badge.
type EvaluateResponse struct {
	BadgeID string       `json:"badge_id"`
	Awarded []badge.Tier `json:"awarded"`
}

func (s *Server) handleEvaluateBadge(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var req CounterRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeDomainError(w, r, "Evaluate", err)
		return
	}

	tiers, err := s.deps.Badges.EvaluateByID(r.Context(), vars["user_id"], vars["badge_id"], req.Counter)
	if err != nil {
		s.writeDomainError(w, r, "Evaluate", err)
		return
	}
	if tiers == nil {
		tiers = []badge.Tier{}
	}
	writeJSON(w, r, http.StatusOK, EvaluateResponse{BadgeID: vars["badge_id"], Awarded: tiers})
}

// handleReportCounter evaluates every badge watching a condition. The goal
// service reports completed-goal counts here.
func (s *Server) handleReportCounter(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var req CounterRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeDomainError(w, r, "EvaluateCondition", err)
		return
	}

	awarded, err := s.deps.Badges.EvaluateCondition(r.Context(), vars["user_id"], badge.ConditionType(vars["condition"]), req.Counter)
	if err != nil {
		s.writeDomainError(w, r, "EvaluateCondition", err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]interface{}{"awarded": awarded})
}
