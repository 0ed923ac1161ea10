package services

import (
	"context"
	"fmt"
	"math"
	"sort"

	"dogpark-economy/config"
	"dogpark-economy/geo"
	"dogpark-economy/metrics"
	"dogpark-economy/models"
	"dogpark-economy/store"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// SpawnService keeps the map populated with collectibles.
type SpawnService struct {
	store   store.Store
	economy *config.Economy
	rand    Random
	clock   clockwork.Clock
	log     *zap.Logger
}

func NewSpawnService(st store.Store, economy *config.Economy, rnd Random, clock clockwork.Clock, log *zap.Logger) *SpawnService {
	return &SpawnService{store: st, economy: economy, rand: rnd, clock: clock, log: orNop(log)}
}

// SpawnReport summarises one generation run.
type SpawnReport struct {
	Expired  int64          `json:"expired"`
	Placed   map[string]int `json:"placed"`
	Attempts map[string]int `json:"attempts"`
	// Errors counts store failures that were logged and skipped.
	Errors int `json:"errors"`
}

// SweepExpired deactivates spawns whose expiry has passed.
func (s *SpawnService) SweepExpired(ctx context.Context) (int64, error) {
	n, err := s.store.DeactivateExpiredSpawns(ctx, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("sweep expired spawns: %w", err)
	}
	metrics.RecordSpawnsExpired(n)
	if n > 0 {
		s.log.Info("🧹 expired spawns swept", zap.Int64("count", n))
	}
	return n, nil
}

// GenerateSpawns sweeps expired spawns and tops every type up to capacity.
// Under-population is not an error; the next run tries again.
func (s *SpawnService) GenerateSpawns(ctx context.Context) SpawnReport {
	report := SpawnReport{Placed: map[string]int{}, Attempts: map[string]int{}}

	expired, err := s.SweepExpired(ctx)
	if err != nil {
		s.log.Warn("⚠️ spawn sweep failed", zap.Error(err))
		report.Errors++
	}
	report.Expired = expired

	now := s.clock.Now()
	active, err := s.store.ListActiveSpawns(ctx, now)
	if err != nil {
		s.log.Error("❌ listing active spawns failed, skipping generation", zap.Error(err))
		report.Errors++
		return report
	}

	counts := map[string]int{}
	for _, sp := range active {
		counts[sp.Type]++
	}

	for _, t := range s.economy.Spawns.Types {
		deficit := t.MaxActiveSpawns - counts[t.Type]
		if deficit <= 0 {
			continue
		}
		budget := deficit * s.economy.Spawns.AttemptMultiplier
		placed := 0
		for attempt := 0; attempt < budget && placed < deficit; attempt++ {
			report.Attempts[t.Type]++

			region := s.pickRegion()
			p := geo.SamplePointInRadius(region.Center(), s.economy.Spawns.SampleRadiusMeters, s.rand.Float64)
			if s.tooClose(p, t, active) {
				continue
			}
			if s.rand.Float64() >= t.SpawnChance {
				continue
			}

			expires := now.Add(t.RespawnTime())
			sp := models.CollectibleSpawn{
				ID:        uuid.NewString(),
				Type:      t.Type,
				Rarity:    t.Rarity,
				Latitude:  p.Lat,
				Longitude: p.Lng,
				Value:     t.Value,
				IsActive:  true,
				ExpiresAt: &expires,
				CreatedAt: now,
			}
			if err := s.store.InsertSpawn(ctx, &sp); err != nil {
				s.log.Warn("⚠️ failed to insert spawn", zap.String("type", t.Type), zap.Error(err))
				report.Errors++
				continue
			}
			active = append(active, sp)
			placed++
		}
		report.Placed[t.Type] = placed
		metrics.RecordSpawnsPlaced(t.Type, placed)
	}

	s.log.Info("🦴 spawn generation finished",
		zap.Int64("expired", report.Expired),
		zap.Any("placed", report.Placed),
		zap.Int("errors", report.Errors))
	return report
}

// pickRegion draws a region proportionally to its weight.
func (s *SpawnService) pickRegion() config.Region {
	regions := s.economy.Spawns.Regions
	total := 0.0
	for _, r := range regions {
		total += r.Weight
	}
	target := s.rand.Float64() * total
	cumulative := 0.0
	for _, r := range regions {
		cumulative += r.Weight
		if target < cumulative {
			return r
		}
	}
	return regions[len(regions)-1]
}

// tooClose reports whether p violates separation against any active spawn.
// The required gap is the larger of the two types' radii.
func (s *SpawnService) tooClose(p geo.Point, t config.SpawnType, active []models.CollectibleSpawn) bool {
	for _, sp := range active {
		gap := t.MinSeparationMeters
		if other, ok := s.economy.SpawnType(sp.Type); ok {
			gap = math.Max(gap, other.MinSeparationMeters)
		}
		if geo.Distance(p, geo.Point{Lat: sp.Latitude, Lng: sp.Longitude}) < gap {
			return true
		}
	}
	return false
}

// NearbySpawn is an active spawn with its distance from the query point.
type NearbySpawn struct {
	models.CollectibleSpawn
	DistanceMeters float64 `json:"distance_meters"`
}

// Nearby lists active spawns within radius meters of (lat, lng), closest first.
// The radius is capped by configuration.
func (s *SpawnService) Nearby(ctx context.Context, lat, lng, radius float64) ([]NearbySpawn, error) {
	center := geo.Point{Lat: lat, Lng: lng}
	if !center.Valid() {
		return nil, ErrInvalidLocation
	}
	limit := s.economy.Spawns.MaxNearbyRadiusMeters
	if radius <= 0 || radius > limit {
		radius = limit
	}

	candidates, err := s.store.ListActiveSpawnsIn(ctx, geo.BoxAround(center, radius), s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("list nearby spawns: %w", err)
	}
	out := make([]NearbySpawn, 0, len(candidates))
	for _, sp := range candidates {
		d := geo.Distance(center, geo.Point{Lat: sp.Latitude, Lng: sp.Longitude})
		if d <= radius {
			out = append(out, NearbySpawn{CollectibleSpawn: sp, DistanceMeters: d})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DistanceMeters < out[j].DistanceMeters })
	return out, nil
}
