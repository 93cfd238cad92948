package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/parlaygames/parlay/internal/domain"
)

// Narrow store interfaces required by the archiver. The Postgres stores
// satisfy these implicitly; the archiver only needs the time-ranged reads.

// MarketArchiveStore reads markets whose resolution predates a cutoff.
type MarketArchiveStore interface {
	ListResolvedBefore(ctx context.Context, before time.Time) ([]domain.Market, error)
}

// PositionArchiveStore reads every position of one market.
type PositionArchiveStore interface {
	ListByMarket(ctx context.Context, marketID string) ([]domain.Position, error)
}

// SnapshotArchiveStore reads probability history older than a cutoff.
type SnapshotArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.ProbabilitySnapshot, error)
}

// ActivityArchiveStore reads feed entries older than a cutoff.
type ActivityArchiveStore interface {
	List(ctx context.Context, opts domain.ListOpts) ([]domain.ActivityEntry, error)
}

// Archive record shapes. The domain structs carry no serialization tags, so
// the wire format of the cold store is pinned here instead of leaking
// whatever the Go field names happen to be.

type archivedPosition struct {
	ID               string     `json:"id"`
	UserID           string     `json:"user_id"`
	OutcomeID        string     `json:"outcome_id"`
	Amount           int64      `json:"amount"`
	EntryProbability float64    `json:"entry_probability"`
	Shares           float64    `json:"shares"`
	OpenedAt         time.Time  `json:"opened_at"`
	ClosedAt         *time.Time `json:"closed_at,omitempty"`
	ExitProbability  *float64   `json:"exit_probability,omitempty"`
}

type archivedMarket struct {
	ID                string             `json:"id"`
	Question          string             `json:"question"`
	Slug              string             `json:"slug"`
	CreatorID         string             `json:"creator_id"`
	FinalProbability  float64            `json:"final_probability"`
	TotalVolume       int64              `json:"total_volume"`
	ParticipantCount  int                `json:"participant_count"`
	ResolvedOutcomeID string             `json:"resolved_outcome_id"`
	ResolvedAt        *time.Time         `json:"resolved_at,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	Positions         []archivedPosition `json:"positions"`
}

type archivedSnapshot struct {
	MarketID    string    `json:"market_id"`
	OutcomeID   string    `json:"outcome_id"`
	Probability float64   `json:"probability"`
	CreatedAt   time.Time `json:"created_at"`
}

type archivedActivity struct {
	Type      string    `json:"type"`
	UserID    *string   `json:"user_id,omitempty"`
	MarketID  string    `json:"market_id"`
	Side      string    `json:"side,omitempty"`
	Amount    *int64    `json:"amount,omitempty"`
	Price     *float64  `json:"price,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ArchiveImpl implements domain.Archiver: it reads cold records from the
// stores, serializes them to JSONL, and uploads one object per run. Deleting
// the archived rows from Postgres is the caller's step, taken only after the
// upload succeeded.
type ArchiveImpl struct {
	writer    domain.BlobWriter
	markets   MarketArchiveStore
	positions PositionArchiveStore
	snapshots SnapshotArchiveStore
	activity  ActivityArchiveStore
}

var _ domain.Archiver = (*ArchiveImpl)(nil)

// NewArchiver creates an ArchiveImpl over the given stores and writer.
func NewArchiver(
	writer domain.BlobWriter,
	markets MarketArchiveStore,
	positions PositionArchiveStore,
	snapshots SnapshotArchiveStore,
	activity ActivityArchiveStore,
) *ArchiveImpl {
	return &ArchiveImpl{
		writer:    writer,
		markets:   markets,
		positions: positions,
		snapshots: snapshots,
		activity:  activity,
	}
}

// ArchiveResolvedMarkets uploads every market resolved before the cutoff,
// each with its full position history, to archive/markets/YYYY-MM.jsonl.
// Returns the number of markets archived.
func (a *ArchiveImpl) ArchiveResolvedMarkets(ctx context.Context, before time.Time) (int64, error) {
	markets, err := a.markets.ListResolvedBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive markets query: %w", err)
	}
	if len(markets) == 0 {
		return 0, nil
	}

	records := make([]archivedMarket, 0, len(markets))
	for _, m := range markets {
		positions, err := a.positions.ListByMarket(ctx, m.ID)
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive positions for market %s: %w", m.ID, err)
		}
		rec := archivedMarket{
			ID:               m.ID,
			Question:         m.Question,
			Slug:             m.Slug,
			CreatorID:        m.CreatorID,
			FinalProbability: m.CurrentProbability,
			TotalVolume:      m.TotalVolume,
			ParticipantCount: m.ParticipantCount,
			ResolvedAt:       m.ResolvedAt,
			CreatedAt:        m.CreatedAt,
			Positions:        make([]archivedPosition, 0, len(positions)),
		}
		if m.ResolvedOutcomeID != nil {
			rec.ResolvedOutcomeID = *m.ResolvedOutcomeID
		}
		for _, p := range positions {
			rec.Positions = append(rec.Positions, archivedPosition{
				ID:               p.ID,
				UserID:           p.UserID,
				OutcomeID:        p.OutcomeID,
				Amount:           p.Amount,
				EntryProbability: p.EntryProbability,
				Shares:           p.Shares,
				OpenedAt:         p.OpenedAt,
				ClosedAt:         p.ClosedAt,
				ExitProbability:  p.ExitProbability,
			})
		}
		records = append(records, rec)
	}

	if err := upload(ctx, a.writer, archivePath("markets", before), records); err != nil {
		return 0, err
	}
	return int64(len(records)), nil
}

// ArchiveSnapshots uploads probability history older than the cutoff to
// archive/snapshots/YYYY-MM.jsonl and returns the row count.
func (a *ArchiveImpl) ArchiveSnapshots(ctx context.Context, before time.Time) (int64, error) {
	snaps, err := a.snapshots.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive snapshots query: %w", err)
	}
	if len(snaps) == 0 {
		return 0, nil
	}

	records := make([]archivedSnapshot, 0, len(snaps))
	for _, s := range snaps {
		records = append(records, archivedSnapshot{
			MarketID:    s.MarketID,
			OutcomeID:   s.OutcomeID,
			Probability: s.Probability,
			CreatedAt:   s.CreatedAt,
		})
	}

	if err := upload(ctx, a.writer, archivePath("snapshots", before), records); err != nil {
		return 0, err
	}
	return int64(len(records)), nil
}

// ArchiveActivity uploads feed entries older than the cutoff to
// archive/activity/YYYY-MM.jsonl and returns the row count.
func (a *ArchiveImpl) ArchiveActivity(ctx context.Context, before time.Time) (int64, error) {
	entries, err := a.activity.List(ctx, domain.ListOpts{Until: &before})
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive activity query: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	records := make([]archivedActivity, 0, len(entries))
	for _, e := range entries {
		records = append(records, archivedActivity{
			Type:      string(e.Type),
			UserID:    e.UserID,
			MarketID:  e.MarketID,
			Side:      e.Side,
			Amount:    e.Amount,
			Price:     e.Price,
			CreatedAt: e.CreatedAt,
		})
	}

	if err := upload(ctx, a.writer, archivePath("activity", before), records); err != nil {
		return 0, err
	}
	return int64(len(records)), nil
}

func upload[T any](ctx context.Context, writer domain.BlobWriter, path string, records []T) error {
	buf, err := marshalJSONL(records)
	if err != nil {
		return fmt.Errorf("s3blob: marshal %s: %w", path, err)
	}
	if err := writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return fmt.Errorf("s3blob: upload %s: %w", path, err)
	}
	return nil
}

// archivePath partitions archive objects by the year-month of the cutoff:
//
//	archive/markets/2026-08.jsonl
//	archive/snapshots/2026-08.jsonl
//	archive/activity/2026-08.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serializes one compact JSON object per line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
