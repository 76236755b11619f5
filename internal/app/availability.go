package app

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"resort_booking/internal/domain"
)

// AvailabilityService resolves which units of a collection are free for a
// date range, combining the local reservation ledger with live channel data.
type AvailabilityService struct {
	repo     domain.Repository
	channel  domain.ChannelClient
	cache    domain.Cache
	cacheTTL time.Duration
}

func NewAvailabilityService(r domain.Repository, ch domain.ChannelClient, c domain.Cache, ttl time.Duration) *AvailabilityService {
	return &AvailabilityService{repo: r, channel: ch, cache: c, cacheTTL: ttl}
}

const dateKey = "2006-01-02"

// FreeUnits is the display path: cached with a short TTL and fail-open when
// the channel is unreachable. Fulfillment never reads this cache; its
// allocation re-checks inside a storage transaction.
func (s *AvailabilityService) FreeUnits(ctx context.Context, collectionID int64, from, to time.Time) (int, error) {
	key := fmt.Sprintf("avail:%d:%s:%s", collectionID, from.Format(dateKey), to.Format(dateKey))
	var n int
	if s.cache != nil {
		if ok, _ := s.cache.Get(ctx, key, &n); ok {
			return n, nil
		}
	}
	free, err := s.FreeCandidates(ctx, collectionID, from, to)
	if err != nil {
		return 0, err
	}
	n = len(free)
	if s.cache != nil {
		_ = s.cache.Set(ctx, key, n, int(s.cacheTTL.Seconds()))
	}
	return n, nil
}

// FreeCandidates returns the units of the collection free over [from, to) in
// stable collection order (ascending unit id).
//
// A unit survives only if it passes both exclusion sources: the local ledger
// (CONFIRMED/COMPLETED overlapping booking units) and the channel manager
// (any unavailable day in range excludes). The excluded set is the union of
// the two, so the result is never less restrictive than either source. If
// the remote query fails the resolver proceeds on local data alone.
func (s *AvailabilityService) FreeCandidates(ctx context.Context, collectionID int64, from, to time.Time) ([]domain.Unit, error) {
	units, err := s.repo.ListUnits(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	var candidates []domain.Unit
	for _, u := range units {
		if u.Bookable() {
			candidates = append(candidates, u)
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })
	if len(candidates) == 0 {
		return nil, nil
	}

	excluded := make(map[int64]bool)

	bookedIDs, err := s.repo.ListBookedUnitIDs(ctx, collectionID, from, to)
	if err != nil {
		return nil, err
	}
	for _, id := range bookedIDs {
		excluded[id] = true
	}

	remoteIDs := make([]string, 0, len(candidates))
	for _, u := range candidates {
		remoteIDs = append(remoteIDs, *u.RemoteID)
	}
	rates, err := s.channel.ListUnitDayRates(ctx, remoteIDs, from, to)
	if err != nil {
		// fail open: trust the local ledger alone for display
		log.Warn().Err(err).Int64("collection", collectionID).Msg("channel availability query failed, using local ledger only")
	} else {
		for _, u := range candidates {
			if anyDayUnavailable(rates[*u.RemoteID], from, to) {
				excluded[u.ID] = true
			}
		}
	}

	free := candidates[:0:0]
	for _, u := range candidates {
		if !excluded[u.ID] {
			free = append(free, u)
		}
	}
	return free, nil
}

// Select picks the first n free units in stable collection order.
func (s *AvailabilityService) Select(ctx context.Context, collectionID int64, from, to time.Time, n int) ([]domain.Unit, error) {
	free, err := s.FreeCandidates(ctx, collectionID, from, to)
	if err != nil {
		return nil, err
	}
	if len(free) < n {
		return nil, domain.ErrInsufficientAvailability
	}
	return free[:n], nil
}

func anyDayUnavailable(days []domain.DayRate, from, to time.Time) bool {
	for _, d := range days {
		if !d.Date.Before(from) && d.Date.Before(to) && !d.Available {
			return true
		}
	}
	return false
}
