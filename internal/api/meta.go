package api

import (
	"github.com/gin-gonic/gin"

	"roster/internal/registry"
	"roster/internal/roster"
)

// ===== META HANDLERS =====

type metaField struct {
	Name     string   `json:"name"`
	Type     string   `json:"type"`
	Required bool     `json:"required,omitempty"`
	Unique   bool     `json:"unique,omitempty"`
	System   bool     `json:"system,omitempty"`
	Ref      string   `json:"ref,omitempty"`
	Enum     []string `json:"enum,omitempty"`
}

type metaRelation struct {
	Name       string `json:"name"`
	Target     string `json:"target"`
	ForeignKey string `json:"foreignKey"`
}

type metaEntity struct {
	Entity      string         `json:"entity"`
	SearchField string         `json:"searchField,omitempty"`
	Fields      []metaField    `json:"fields"`
	Relations   []metaRelation `json:"relations,omitempty"`
}

// enums lists the closed value sets enforced on payloads, per entity field.
var enums = map[string]map[string][]string{
	registry.Team:   {"shirtColor": roster.ShirtColors},
	registry.Player: {"position": roster.Positions},
}

func describe(e *registry.Entity) metaEntity {
	fields := make([]metaField, 0, len(e.Fields))
	for _, f := range e.Fields {
		fields = append(fields, metaField{
			Name:     f.Name,
			Type:     string(f.Kind),
			Required: f.Required,
			Unique:   f.Unique,
			System:   e.System(f.Name),
			Ref:      f.References,
			Enum:     enums[e.Name][f.Name],
		})
	}
	var rels []metaRelation
	for _, r := range e.Relations {
		rels = append(rels, metaRelation{Name: r.Name, Target: r.Target, ForeignKey: r.ForeignKey})
	}
	return metaEntity{Entity: e.Name, SearchField: e.SearchField, Fields: fields, Relations: rels}
}

// GET /api/v1/meta
func MetaListHandler(reg *registry.Registry) gin.HandlerFunc {
	entities := reg.Entities()
	out := make([]metaEntity, 0, len(entities))
	for _, e := range entities {
		out = append(out, describe(e))
	}
	return func(c *gin.Context) {
		sendSuccess(c, gin.H{"entities": out})
	}
}
