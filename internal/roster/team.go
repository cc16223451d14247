// Package roster holds the team and player services: the generic entity
// service plus the team aggregate operations.
package roster

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"roster/internal/registry"
	"roster/internal/service"
	"roster/internal/store"
)

// Services bundles the per-entity services the HTTP layer needs.
type Services struct {
	Teams   *TeamService
	Players *service.Service
}

func New(st store.Store, reg *registry.Registry, log *zap.Logger) (*Services, error) {
	teams, err := service.New(st, reg, registry.Team, log)
	if err != nil {
		return nil, err
	}
	players, err := teams.Sibling(registry.Player)
	if err != nil {
		return nil, err
	}
	return &Services{Teams: &TeamService{Service: teams}, Players: players}, nil
}

// TeamService is the generic service for teams plus squad aggregates.
type TeamService struct {
	*service.Service
}

// TeamStats is derived from a team's current squad.
type TeamStats struct {
	TotalSalary   float64 `json:"totalSalary"`
	PlayerCount   int     `json:"playerCount"`
	AverageSalary float64 `json:"averageSalary"`
}

// GetTeamWithPlayers returns the team with its "players" relation loaded.
func (s *TeamService) GetTeamWithPlayers(ctx context.Context, id string) (store.Record, error) {
	return s.GetOne(ctx, id, "players")
}

// CalculateTeamStats folds over the squad fetched with the team; no extra query.
func (s *TeamService) CalculateTeamStats(ctx context.Context, id string) (TeamStats, error) {
	team, err := s.GetTeamWithPlayers(ctx, id)
	if err != nil {
		return TeamStats{}, err
	}
	players, _ := team["players"].([]store.Record)
	return Stats(players)
}

func (s *TeamService) CalculateTeamSalary(ctx context.Context, id string) (float64, error) {
	stats, err := s.CalculateTeamStats(ctx, id)
	if err != nil {
		return 0, err
	}
	return stats.TotalSalary, nil
}

// CreateTeamWithPlayers creates the team and its initial players in one
// transaction and returns the team with the squad attached.
func (s *TeamService) CreateTeamWithPlayers(ctx context.Context, team store.Record, players []store.Record) (store.Record, error) {
	var out store.Record
	err := s.Transaction(ctx, func(tx *service.Service) error {
		created, err := tx.CreateOne(ctx, team)
		if err != nil {
			return err
		}
		id, _ := created[tx.Entity().IDField].(string)
		if len(players) == 0 {
			out = created
			out["players"] = []store.Record{}
			return nil
		}

		squad, err := tx.Sibling(registry.Player)
		if err != nil {
			return err
		}
		for _, p := range players {
			rec := p.Clone()
			rec["teamId"] = id
			if _, err := squad.CreateOne(ctx, rec); err != nil {
				return err
			}
		}
		out, err = tx.GetOne(ctx, id, "players")
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Stats sums salaries exactly and reports the mean; an empty squad is all zeros.
func Stats(players []store.Record) (TeamStats, error) {
	total := decimal.Zero
	for _, p := range players {
		salary, err := toDecimal(p["salary"])
		if err != nil {
			return TeamStats{}, fmt.Errorf("player %v: %w", p["id"], err)
		}
		total = total.Add(salary)
	}
	stats := TeamStats{
		TotalSalary: total.InexactFloat64(),
		PlayerCount: len(players),
	}
	if len(players) > 0 {
		stats.AverageSalary = total.Div(decimal.NewFromInt(int64(len(players)))).InexactFloat64()
	}
	return stats, nil
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch t := v.(type) {
	case nil:
		return decimal.Zero, nil
	case float64:
		return decimal.NewFromFloat(t), nil
	case float32:
		return decimal.NewFromFloat32(t), nil
	case int:
		return decimal.NewFromInt(int64(t)), nil
	case int64:
		return decimal.NewFromInt(t), nil
	case string:
		return decimal.NewFromString(t)
	case decimal.Decimal:
		return t, nil
	}
	return decimal.Zero, fmt.Errorf("salary of unexpected type %T", v)
}
