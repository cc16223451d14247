// Package seed loads a YAML dataset of teams and players and inserts it.
package seed

import (
	"context"
	_ "embed"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"roster/internal/query"
	"roster/internal/roster"
	"roster/internal/service"
)

//go:embed dataset.yaml
var builtin []byte

type Dataset struct {
	Teams []Team `yaml:"teams"`
}

type Team struct {
	Name       string   `yaml:"name"`
	ShirtColor string   `yaml:"shirtColor"`
	Players    []Player `yaml:"players"`
}

type Player struct {
	Name     string  `yaml:"name"`
	Position string  `yaml:"position"`
	Age      int     `yaml:"age"`
	Salary   float64 `yaml:"salary"`
}

// Summary counts what Apply inserted.
type Summary struct {
	Teams   int
	Players int
	Skipped int // teams already present by name
}

// Load reads the dataset at path, or the built-in one when path is empty.
func Load(path string) (Dataset, error) {
	data := builtin
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Dataset{}, fmt.Errorf("read seed: %w", err)
		}
		data = b
	}
	return Parse(data)
}

func Parse(data []byte) (Dataset, error) {
	var ds Dataset
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return Dataset{}, fmt.Errorf("parse seed: %w", err)
	}
	return ds, nil
}

func (t Team) input() roster.CreateTeamInput {
	in := roster.CreateTeamInput{TeamInput: roster.TeamInput{Name: t.Name, ShirtColor: t.ShirtColor}}
	for _, p := range t.Players {
		age, salary := p.Age, p.Salary
		in.Players = append(in.Players, roster.PlayerInput{Name: p.Name, Position: p.Position, Age: &age, Salary: &salary})
	}
	in.Normalize()
	return in
}

// Validate checks every team and player against the API payload rules.
func (ds Dataset) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.SetTagName("binding")
	if err := roster.RegisterValidation(v); err != nil {
		return err
	}
	for i, t := range ds.Teams {
		if err := v.Struct(t.input()); err != nil {
			return fmt.Errorf("seed team %d (%s): %w", i, t.Name, err)
		}
	}
	return nil
}

// Apply inserts the dataset in one transaction. Teams whose name already
// exists are skipped, so seeding twice is harmless.
func Apply(ctx context.Context, teams *roster.TeamService, ds Dataset, log *zap.Logger) (Summary, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := ds.Validate(); err != nil {
		return Summary{}, err
	}

	var sum Summary
	err := teams.Transaction(ctx, func(tx *service.Service) error {
		txTeams := &roster.TeamService{Service: tx}
		for _, t := range ds.Teams {
			existing, err := tx.GetAll(ctx, query.Params{"name": t.Name, query.KeyFields: "id", query.KeyLimit: 1})
			if err != nil {
				return err
			}
			if existing.Pagination.Total > 0 {
				sum.Skipped++
				continue
			}
			in := t.input()
			if _, err := txTeams.CreateTeamWithPlayers(ctx, in.ToRecord(), in.PlayerRecords()); err != nil {
				return fmt.Errorf("seed team %s: %w", t.Name, err)
			}
			sum.Teams++
			sum.Players += len(t.Players)
		}
		return nil
	})
	if err != nil {
		return Summary{}, err
	}
	log.Info("seed applied", zap.Int("teams", sum.Teams), zap.Int("players", sum.Players), zap.Int("skipped", sum.Skipped))
	return sum, nil
}
