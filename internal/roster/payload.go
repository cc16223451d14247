package roster

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"roster/internal/store"
)

// Shirt colours and positions accepted by the payload validators.
var (
	ShirtColors = []string{"red", "blue", "green", "yellow", "white", "black", "orange", "purple", "pink", "brown"}
	Positions   = []string{"Goalkeeper", "Defender", "Midfielder", "Forward"}
)

var alphaSpace = regexp.MustCompile(`^[a-zA-Z\s]+$`)

// RegisterValidation adds the custom tags used by the payload structs.
func RegisterValidation(v *validator.Validate) error {
	return v.RegisterValidation("alphaspace", func(fl validator.FieldLevel) bool {
		return alphaSpace.MatchString(fl.Field().String())
	})
}

type PlayerInput struct {
	Name     string   `json:"name" binding:"required,min=2,max=100,alphaspace"`
	Age      *int     `json:"age" binding:"required,min=16,max=45"`
	Salary   *float64 `json:"salary" binding:"required,gt=0"`
	Position string   `json:"position" binding:"required,oneof=Goalkeeper Defender Midfielder Forward"`
}

// Normalize trims free-text fields so length rules see what gets stored.
func (in *PlayerInput) Normalize() {
	in.Name = strings.TrimSpace(in.Name)
}

func (in PlayerInput) ToRecord() store.Record {
	rec := store.Record{
		"name":     strings.TrimSpace(in.Name),
		"position": in.Position,
	}
	if in.Age != nil {
		rec["age"] = *in.Age
	}
	if in.Salary != nil {
		rec["salary"] = *in.Salary
	}
	return rec
}

type CreatePlayerInput struct {
	PlayerInput
	TeamID string `json:"teamId" binding:"required,uuid"`
}

func (in CreatePlayerInput) ToRecord() store.Record {
	rec := in.PlayerInput.ToRecord()
	rec["teamId"] = in.TeamID
	return rec
}

// UpdatePlayerInput is partial: nil fields are left alone.
type UpdatePlayerInput struct {
	Name     *string  `json:"name" binding:"omitnil,min=2,max=100,alphaspace"`
	Age      *int     `json:"age" binding:"omitnil,min=16,max=45"`
	Salary   *float64 `json:"salary" binding:"omitnil,gt=0"`
	Position *string  `json:"position" binding:"omitnil,oneof=Goalkeeper Defender Midfielder Forward"`
	TeamID   *string  `json:"teamId" binding:"omitnil,uuid"`
}

func (in *UpdatePlayerInput) Normalize() {
	trimPtr(in.Name)
}

func (in UpdatePlayerInput) ToRecord() store.Record {
	rec := store.Record{}
	if in.Name != nil {
		rec["name"] = strings.TrimSpace(*in.Name)
	}
	if in.Age != nil {
		rec["age"] = *in.Age
	}
	if in.Salary != nil {
		rec["salary"] = *in.Salary
	}
	if in.Position != nil {
		rec["position"] = *in.Position
	}
	if in.TeamID != nil {
		rec["teamId"] = *in.TeamID
	}
	return rec
}

type TeamInput struct {
	Name       string `json:"name" binding:"required,min=3,max=100,alphaspace"`
	ShirtColor string `json:"shirtColor" binding:"required,oneof=red blue green yellow white black orange purple pink brown"`
}

func (in *TeamInput) Normalize() {
	in.Name = strings.TrimSpace(in.Name)
}

func (in TeamInput) ToRecord() store.Record {
	return store.Record{
		"name":       strings.TrimSpace(in.Name),
		"shirtColor": in.ShirtColor,
	}
}

// CreateTeamInput may carry an initial squad; team and players are created
// together or not at all.
type CreateTeamInput struct {
	TeamInput
	Players []PlayerInput `json:"players" binding:"omitempty,dive"`
}

func (in *CreateTeamInput) Normalize() {
	in.TeamInput.Normalize()
	for i := range in.Players {
		in.Players[i].Normalize()
	}
}

func (in CreateTeamInput) PlayerRecords() []store.Record {
	out := make([]store.Record, 0, len(in.Players))
	for _, p := range in.Players {
		out = append(out, p.ToRecord())
	}
	return out
}

type UpdateTeamInput struct {
	Name       *string `json:"name" binding:"omitnil,min=3,max=100,alphaspace"`
	ShirtColor *string `json:"shirtColor" binding:"omitnil,oneof=red blue green yellow white black orange purple pink brown"`
}

func (in *UpdateTeamInput) Normalize() {
	trimPtr(in.Name)
}

func (in UpdateTeamInput) ToRecord() store.Record {
	rec := store.Record{}
	if in.Name != nil {
		rec["name"] = strings.TrimSpace(*in.Name)
	}
	if in.ShirtColor != nil {
		rec["shirtColor"] = *in.ShirtColor
	}
	return rec
}

func trimPtr(s *string) {
	if s != nil {
		*s = strings.TrimSpace(*s)
	}
}
