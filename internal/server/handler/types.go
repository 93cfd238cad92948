package handler

import (
	"time"

	"github.com/parlaygames/parlay/internal/domain"
)

// API response shapes. The domain structs carry no serialization tags, so
// the wire format is pinned here.

type outcomeResponse struct {
	ID          string  `json:"id"`
	Label       string  `json:"label"`
	IsYes       bool    `json:"is_yes"`
	Probability float64 `json:"probability"`
}

type marketResponse struct {
	ID                 string            `json:"id"`
	Question           string            `json:"question"`
	Slug               string            `json:"slug"`
	CreatorID          string            `json:"creator_id"`
	Outcomes           []outcomeResponse `json:"outcomes"`
	CurrentProbability float64           `json:"current_probability"`
	Liquidity          float64           `json:"liquidity"`
	TotalVolume        int64             `json:"total_volume"`
	ParticipantCount   int               `json:"participant_count"`
	ClosesAt           time.Time         `json:"closes_at"`
	Resolved           bool              `json:"resolved"`
	ResolvedOutcomeID  *string           `json:"resolved_outcome_id,omitempty"`
	ResolvedAt         *time.Time        `json:"resolved_at,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
}

func toMarketResponse(m domain.Market) marketResponse {
	resp := marketResponse{
		ID:                 m.ID,
		Question:           m.Question,
		Slug:               m.Slug,
		CreatorID:          m.CreatorID,
		Outcomes:           make([]outcomeResponse, 0, len(m.Outcomes)),
		CurrentProbability: m.CurrentProbability,
		Liquidity:          m.Liquidity,
		TotalVolume:        m.TotalVolume,
		ParticipantCount:   m.ParticipantCount,
		ClosesAt:           m.ClosesAt,
		Resolved:           m.IsResolved(),
		ResolvedOutcomeID:  m.ResolvedOutcomeID,
		ResolvedAt:         m.ResolvedAt,
		CreatedAt:          m.CreatedAt,
	}
	for _, o := range m.Outcomes {
		resp.Outcomes = append(resp.Outcomes, outcomeResponse{
			ID:          o.ID,
			Label:       o.Label,
			IsYes:       o.IsYes,
			Probability: m.ProbabilityOf(o),
		})
	}
	return resp
}

func toMarketResponses(markets []domain.Market) []marketResponse {
	out := make([]marketResponse, 0, len(markets))
	for _, m := range markets {
		out = append(out, toMarketResponse(m))
	}
	return out
}

type positionResponse struct {
	ID               string     `json:"id"`
	UserID           string     `json:"user_id"`
	MarketID         string     `json:"market_id"`
	OutcomeID        string     `json:"outcome_id"`
	Amount           int64      `json:"amount"`
	EntryProbability float64    `json:"entry_probability"`
	Shares           float64    `json:"shares"`
	Open             bool       `json:"open"`
	OpenedAt         time.Time  `json:"opened_at"`
	ClosedAt         *time.Time `json:"closed_at,omitempty"`
	ExitProbability  *float64   `json:"exit_probability,omitempty"`
}

func toPositionResponse(p domain.Position) positionResponse {
	return positionResponse{
		ID:               p.ID,
		UserID:           p.UserID,
		MarketID:         p.MarketID,
		OutcomeID:        p.OutcomeID,
		Amount:           p.Amount,
		EntryProbability: p.EntryProbability,
		Shares:           p.Shares,
		Open:             p.IsOpen(),
		OpenedAt:         p.OpenedAt,
		ClosedAt:         p.ClosedAt,
		ExitProbability:  p.ExitProbability,
	}
}

type userResponse struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	Balance     int64     `json:"balance"`
	Rating      int       `json:"rating"`
	WinStreak   int       `json:"win_streak"`
	TotalWins   int       `json:"total_wins"`
	TotalLosses int       `json:"total_losses"`
	TotalProfit int64     `json:"total_profit"`
	IsBot       bool      `json:"is_bot"`
	CreatedAt   time.Time `json:"created_at"`
}

func toUserResponse(u domain.User) userResponse {
	return userResponse{
		ID:          u.ID,
		Username:    u.Username,
		Balance:     u.Balance,
		Rating:      u.Rating,
		WinStreak:   u.WinStreak,
		TotalWins:   u.TotalWins,
		TotalLosses: u.TotalLosses,
		TotalProfit: u.TotalProfit,
		IsBot:       u.IsBot,
		CreatedAt:   u.CreatedAt,
	}
}

type activityResponse struct {
	Type      string    `json:"type"`
	UserID    *string   `json:"user_id,omitempty"`
	MarketID  string    `json:"market_id"`
	Side      string    `json:"side,omitempty"`
	Amount    *int64    `json:"amount,omitempty"`
	Price     *float64  `json:"price,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func toActivityResponses(entries []domain.ActivityEntry) []activityResponse {
	out := make([]activityResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, activityResponse{
			Type:      string(e.Type),
			UserID:    e.UserID,
			MarketID:  e.MarketID,
			Side:      e.Side,
			Amount:    e.Amount,
			Price:     e.Price,
			CreatedAt: e.CreatedAt,
		})
	}
	return out
}

type snapshotResponse struct {
	OutcomeID   string    `json:"outcome_id"`
	Probability float64   `json:"probability"`
	CreatedAt   time.Time `json:"created_at"`
}

func toSnapshotResponses(snaps []domain.ProbabilitySnapshot) []snapshotResponse {
	out := make([]snapshotResponse, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, snapshotResponse{
			OutcomeID:   s.OutcomeID,
			Probability: s.Probability,
			CreatedAt:   s.CreatedAt,
		})
	}
	return out
}

type transactionResponse struct {
	ID         int64     `json:"id"`
	UserID     string    `json:"user_id"`
	MarketID   *string   `json:"market_id,omitempty"`
	PositionID *string   `json:"position_id,omitempty"`
	Type       string    `json:"type"`
	Amount     int64     `json:"amount"`
	CreatedAt  time.Time `json:"created_at"`
}

func toTransactionResponses(txns []domain.Transaction) []transactionResponse {
	out := make([]transactionResponse, 0, len(txns))
	for _, t := range txns {
		out = append(out, transactionResponse{
			ID:         t.ID,
			UserID:     t.UserID,
			MarketID:   t.MarketID,
			PositionID: t.PositionID,
			Type:       string(t.Type),
			Amount:     t.Amount,
			CreatedAt:  t.CreatedAt,
		})
	}
	return out
}

type settlementResponse struct {
	MarketID         string                   `json:"market_id"`
	WinningOutcomeID string                   `json:"winning_outcome_id"`
	ResolvedAt       time.Time                `json:"resolved_at"`
	TotalActiveStake int64                    `json:"total_active_stake"`
	Users            []userSettlementResponse `json:"users"`
	Creator          *creatorResponse         `json:"creator,omitempty"`
}

type userSettlementResponse struct {
	UserID         string `json:"user_id"`
	Won            bool   `json:"won"`
	Payout         int64  `json:"payout"`
	NetProfit      int64  `json:"net_profit"`
	NearMiss       bool   `json:"near_miss"`
	NearMissCredit int64  `json:"near_miss_credit,omitempty"`
	RatingBefore   int    `json:"rating_before"`
	RatingAfter    int    `json:"rating_after"`
}

type creatorResponse struct {
	CreatorID string `json:"creator_id"`
	Refund    int64  `json:"refund"`
	Reward    int64  `json:"reward"`
}

func toSettlementResponse(plan domain.SettlementPlan) settlementResponse {
	resp := settlementResponse{
		MarketID:         plan.MarketID,
		WinningOutcomeID: plan.WinningOutcomeID,
		ResolvedAt:       plan.ResolvedAt,
		TotalActiveStake: plan.TotalActiveStake,
		Users:            make([]userSettlementResponse, 0, len(plan.Users)),
	}
	for _, u := range plan.Users {
		resp.Users = append(resp.Users, userSettlementResponse{
			UserID:         u.UserID,
			Won:            u.Won,
			Payout:         u.Payout,
			NetProfit:      u.NetProfit,
			NearMiss:       u.NearMiss,
			NearMissCredit: u.NearMissCredit,
			RatingBefore:   u.RatingBefore,
			RatingAfter:    u.RatingAfter,
		})
	}
	if plan.Creator != nil {
		resp.Creator = &creatorResponse{
			CreatorID: plan.Creator.CreatorID,
			Refund:    plan.Creator.Refund,
			Reward:    plan.Creator.Reward,
		}
	}
	return resp
}
