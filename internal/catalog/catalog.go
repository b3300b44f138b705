// Package catalog implements the service schema model: the bundled
// default catalog, operator-editable overrides and the derivation rules
// for slugs and field identifiers.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/hudumahub/huduma-system/internal/model"
)

// ErrNotFound is returned when no service carries the requested slug.
var ErrNotFound = errors.New("service not found")

// ValidationError reports an invalid service definition or field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// OverrideSource is the external store of operator-edited services.
// Overrides take precedence over the bundled defaults for a given slug.
type OverrideSource interface {
	GetServiceBySlug(ctx context.Context, slug string) (*model.ServiceDefinition, bool, error)
	ListServices(ctx context.Context) ([]model.ServiceDefinition, error)
}

// Catalog resolves service definitions, consulting the override source
// before the bundled defaults.
type Catalog struct {
	overrides OverrideSource
}

// New creates a catalog backed by the given override source. A nil
// source leaves only the bundled defaults.
func New(overrides OverrideSource) *Catalog {
	return &Catalog{overrides: overrides}
}

// GetBySlug returns the service definition for slug, override first,
// bundled default second, ErrNotFound otherwise.
func (c *Catalog) GetBySlug(ctx context.Context, slug string) (*model.ServiceDefinition, error) {
	if c.overrides != nil {
		def, found, err := c.overrides.GetServiceBySlug(ctx, slug)
		if err != nil {
			return nil, fmt.Errorf("lookup override: %w", err)
		}
		if found {
			return def, nil
		}
	}

	if def, ok := defaultBySlug(slug); ok {
		return def, nil
	}

	return nil, ErrNotFound
}

// List returns every known service: all overrides plus any bundled
// default whose slug has not been overridden.
func (c *Catalog) List(ctx context.Context) ([]model.ServiceDefinition, error) {
	var res []model.ServiceDefinition
	seen := make(map[string]struct{})

	if c.overrides != nil {
		overridden, err := c.overrides.ListServices(ctx)
		if err != nil {
			return nil, fmt.Errorf("list overrides: %w", err)
		}
		for _, def := range overridden {
			seen[def.Slug] = struct{}{}
			res = append(res, def)
		}
	}

	for _, def := range Defaults() {
		if _, ok := seen[def.Slug]; !ok {
			res = append(res, def)
		}
	}

	return res, nil
}

// Slugify derives a URL-safe slug from a service title: lowercase with
// every run of non-alphanumeric characters collapsed to one hyphen.
func Slugify(title string) string {
	return derive(title, '-')
}

// FieldID derives a field identifier from its human label: lowercase
// with every run of non-alphanumeric characters collapsed to one
// underscore. Two labels may collide; PrepareUpsert rejects schemas
// where that happens.
func FieldID(label string) string {
	return derive(label, '_')
}

func derive(s string, sep rune) string {
	var b strings.Builder
	pendingSep := false
	for _, ch := range strings.ToLower(s) {
		if unicode.IsLetter(ch) || unicode.IsDigit(ch) {
			if pendingSep && b.Len() > 0 {
				b.WriteRune(sep)
			}
			pendingSep = false
			b.WriteRune(ch)
			continue
		}
		pendingSep = true
	}
	return b.String()
}

// PrepareUpsert validates a service definition for saving and fills the
// derived pieces: a uuid id when absent, a slug from the title when
// absent, and field ids from labels. Field-id uniqueness is enforced
// here, at save time.
func PrepareUpsert(def model.ServiceDefinition) (model.ServiceDefinition, error) {
	if strings.TrimSpace(def.Title) == "" {
		return def, &ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if strings.TrimSpace(def.Category) == "" {
		return def, &ValidationError{Field: "category", Reason: "must not be empty"}
	}
	if def.BaseCost < 0 {
		return def, &ValidationError{Field: "baseCost", Reason: "must not be negative"}
	}
	if def.PlatformFee < 0 {
		return def, &ValidationError{Field: "platformFee", Reason: "must not be negative"}
	}

	if def.ID == "" {
		def.ID = uuid.NewString()
	}
	if def.Slug == "" {
		def.Slug = Slugify(def.Title)
	}

	fields := make([]model.FieldDescriptor, len(def.FieldSchema))
	copy(fields, def.FieldSchema)

	ids := make(map[string]struct{}, len(fields))
	for i, f := range fields {
		if f.ID == "" {
			f.ID = FieldID(f.Label)
		}
		if f.ID == "" {
			return def, &ValidationError{Field: f.Label, Reason: "field label yields an empty identifier"}
		}
		if f.Kind == model.FieldKindSelect && len(f.Options) == 0 {
			return def, &ValidationError{Field: f.Label, Reason: "select field requires options"}
		}
		if _, dup := ids[f.ID]; dup {
			return def, &ValidationError{Field: f.Label, Reason: "duplicate field identifier " + f.ID}
		}
		ids[f.ID] = struct{}{}
		fields[i] = f
	}
	def.FieldSchema = fields

	return def, nil
}

// AddField appends a descriptor to a schema under edit, deriving its id
// from the label when absent. The input slice is not modified.
func AddField(fields []model.FieldDescriptor, f model.FieldDescriptor) []model.FieldDescriptor {
	if f.ID == "" {
		f.ID = FieldID(f.Label)
	}
	res := make([]model.FieldDescriptor, len(fields), len(fields)+1)
	copy(res, fields)
	return append(res, f)
}

// RemoveField drops the descriptor at index. Out-of-range indexes leave
// the schema unchanged. The input slice is not modified.
func RemoveField(fields []model.FieldDescriptor, index int) []model.FieldDescriptor {
	if index < 0 || index >= len(fields) {
		res := make([]model.FieldDescriptor, len(fields))
		copy(res, fields)
		return res
	}
	res := make([]model.FieldDescriptor, 0, len(fields)-1)
	res = append(res, fields[:index]...)
	return append(res, fields[index+1:]...)
}

// UpdateField replaces the descriptor at index. When the label changed,
// the field id is re-derived from the new label. The input slice is not
// modified.
func UpdateField(fields []model.FieldDescriptor, index int, f model.FieldDescriptor) []model.FieldDescriptor {
	res := make([]model.FieldDescriptor, len(fields))
	copy(res, fields)
	if index < 0 || index >= len(fields) {
		return res
	}
	if f.Label != fields[index].Label {
		f.ID = FieldID(f.Label)
	} else if f.ID == "" {
		f.ID = fields[index].ID
	}
	res[index] = f
	return res
}
