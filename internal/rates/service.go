package rates

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/imrishuroy/go-jewelry-orders/internal/apperr"
	"github.com/imrishuroy/go-jewelry-orders/internal/events"
)

// SyncNote is stored on records created by Sync.
const SyncNote = "synced from rate feed"

// Publisher receives rate.recorded events.
type Publisher interface {
	Emit(ctx context.Context, ev events.Event)
}

// ServiceConfig holds the optional collaborators of Service.
type ServiceConfig struct {
	Cache        Cache     // nil disables caching
	Feed         Feed      // nil means no live feed; quotes come from the store
	Events       Publisher // nil disables events
	StoreTimeout time.Duration
}

// Service is the rate API used by handlers, the order service and ratectl.
type Service struct {
	store   *Store
	cache   Cache
	feed    Feed
	events  Publisher
	timeout time.Duration
	log     *zap.Logger
}

// NewService wires a Service around store.
func NewService(store *Store, cfg ServiceConfig, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 5 * time.Second
	}
	return &Service{
		store:   store,
		cache:   cfg.Cache,
		feed:    cfg.Feed,
		events:  cfg.Events,
		timeout: cfg.StoreTimeout,
		log:     log,
	}
}

// Current returns the active record, read through the cache. Cache errors
// only cost a store read.
func (s *Service) Current(ctx context.Context) (Record, error) {
	if s.cache != nil {
		rec, err := s.cache.Get(ctx)
		if err != nil {
			s.log.Warn("rate cache read failed", zap.Error(err))
		} else if rec != nil {
			return *rec, nil
		}
	}

	sctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	rec, err := s.store.Current(sctx)
	if err != nil {
		return Record{}, err
	}
	if !rec.IsZero() && s.cache != nil {
		if err := s.cache.Set(ctx, rec); err != nil {
			s.log.Warn("rate cache write failed", zap.Error(err))
		}
	}
	return rec, nil
}

// Record stores a new active record, refreshes the cache and publishes
// rate.recorded.
func (s *Service) Record(ctx context.Context, in NewRecord) (Record, error) {
	sctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	rec, err := s.store.Record(sctx, in)
	if err != nil {
		return Record{}, err
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx); err != nil {
			s.log.Warn("rate cache invalidate failed", zap.Error(err))
		} else if err := s.cache.Set(ctx, rec); err != nil {
			s.log.Warn("rate cache write failed", zap.Error(err))
		}
	}

	s.log.Info("rate recorded",
		zap.String("rate_id", rec.RateID),
		zap.Float64("gold", rec.GoldRate),
		zap.Float64("silver", rec.SilverRate),
		zap.String("updated_by", rec.UpdatedBy),
	)
	if s.events != nil {
		s.events.Emit(ctx, events.Event{
			Type:       events.RateRecorded,
			RateID:     rec.RateID,
			GoldRate:   rec.GoldRate,
			SilverRate: rec.SilverRate,
			UpdatedBy:  rec.UpdatedBy,
		})
	}
	return rec, nil
}

// History returns up to limit records, most recent first.
func (s *Service) History(ctx context.Context, limit int) ([]Record, error) {
	sctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.store.History(sctx, limit)
}

// Sync records the feed's current quote.
func (s *Service) Sync(ctx context.Context, updatedBy string) (Record, error) {
	if s.feed == nil {
		return Record{}, fmt.Errorf("%w: rate feed not configured", apperr.ErrExternalUnavailable)
	}
	q, err := s.feed.Fetch(ctx)
	if err != nil {
		s.log.Warn("rate feed sync failed", zap.Error(err))
		return Record{}, err
	}
	return s.Record(ctx, NewRecord{Gold: q.Gold, Silver: q.Silver, Notes: SyncNote, UpdatedBy: updatedBy})
}

// Quote returns the rates to price a new order with: the live feed when it
// answers, the active record otherwise. Fallback marks a feed outage.
func (s *Service) Quote(ctx context.Context) (Quote, error) {
	fallback := false
	if s.feed != nil {
		q, err := s.feed.Fetch(ctx)
		if err == nil {
			return Quote{Gold: q.Gold, Silver: q.Silver, Source: SourceFeed}, nil
		}
		s.log.Warn("rate feed unavailable, using last recorded rate", zap.Error(err))
		fallback = true
	}

	rec, err := s.Current(ctx)
	if err != nil {
		return Quote{}, err
	}
	return Quote{
		Gold:     rec.GoldRate,
		Silver:   rec.SilverRate,
		RateID:   rec.RateID,
		Source:   SourceStore,
		Fallback: fallback,
	}, nil
}
