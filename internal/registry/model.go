package registry

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind is the value type of a field.
type Kind string

const (
	KindUUID   Kind = "uuid"
	KindString Kind = "string"
	KindInt    Kind = "int"
	KindFloat  Kind = "float"
	KindTime   Kind = "time"
)

// Entity describes one queryable entity.
type Entity struct {
	Name        string
	Table       string
	IDField     string
	SearchField string // default keyword-search target
	Fields      []Field
	Relations   []Relation
}

// Field describes one attribute of an entity.
type Field struct {
	Name       string
	Kind       Kind
	Required   bool
	Unique     bool
	References string // entity name for foreign keys
}

// Relation is a one-to-many link read-composed on demand:
// records of Target whose ForeignKey equals this entity's id.
type Relation struct {
	Name       string
	Target     string
	ForeignKey string
}

func (e *Entity) Field(name string) (Field, bool) {
	for _, f := range e.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

func (e *Entity) Relation(name string) (Relation, bool) {
	for _, r := range e.Relations {
		if r.Name == name {
			return r, true
		}
	}
	return Relation{}, false
}

func (e *Entity) HasField(name string) bool {
	_, ok := e.Field(name)
	return ok
}

// FieldNames returns field names in declaration order.
func (e *Entity) FieldNames() []string {
	out := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		out = append(out, f.Name)
	}
	return out
}

// System reports whether the field is assigned by the store (identity and timestamps).
func (e *Entity) System(name string) bool {
	return name == e.IDField || name == "createdAt" || name == "updatedAt"
}

// Coerce converts a raw value (query-string text, JSON number, Go scalar) into
// the canonical Go type for the field's kind:
// uuid/string -> string, int -> int64, float -> float64, time -> time.Time.
// nil passes through.
func (f Field) Coerce(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch f.Kind {
	case KindUUID:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected uuid string")
		}
		id, err := uuid.Parse(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("invalid uuid %q", s)
		}
		return id.String(), nil
	case KindString:
		switch t := v.(type) {
		case string:
			return t, nil
		case fmt.Stringer:
			return t.String(), nil
		}
		return nil, fmt.Errorf("expected string")
	case KindInt:
		return toInt(v)
	case KindFloat:
		return toFloat(v)
	case KindTime:
		return toTime(v)
	}
	return nil, fmt.Errorf("unknown kind %q", f.Kind)
}

func toInt(v any) (int64, error) {
	switch t := v.(type) {
	case int:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case int64:
		return t, nil
	case float64:
		if t != math.Trunc(t) {
			return 0, fmt.Errorf("expected integer, got %v", t)
		}
		return int64(t), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("expected integer, got %q", t)
		}
		return n, nil
	}
	return 0, fmt.Errorf("expected integer, got %T", v)
}

func toFloat(v any) (float64, error) {
	switch t := v.(type) {
	case int:
		return float64(t), nil
	case int32:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case float32:
		return float64(t), nil
	case float64:
		return t, nil
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, fmt.Errorf("expected number, got %q", t)
		}
		return n, nil
	}
	return 0, fmt.Errorf("expected number, got %T", v)
}

func toTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case string:
		s := strings.TrimSpace(t)
		if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return ts.UTC(), nil
		}
		if ts, err := time.Parse("2006-01-02", s); err == nil {
			return ts.UTC(), nil
		}
		return time.Time{}, fmt.Errorf("expected RFC3339 time or date, got %q", t)
	}
	return time.Time{}, fmt.Errorf("expected time, got %T", v)
}
