// Package catalog holds the immutable list of models the router can choose from.
// Entries are validated once at load time; a catalog that loads successfully can be
// scored without further checks.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/felipepmaragno/agentrouter/internal/domain"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Catalog struct {
	models []domain.Model
	byID   map[string]int
}

type fileFormat struct {
	Models []domain.Model `json:"models" yaml:"models"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// New validates models and returns a catalog preserving declaration order.
func New(models []domain.Model) (*Catalog, error) {
	c := &Catalog{
		models: make([]domain.Model, 0, len(models)),
		byID:   make(map[string]int, len(models)),
	}

	for _, m := range models {
		if err := validateModel(m); err != nil {
			return nil, err
		}
		if _, dup := c.byID[m.ID]; dup {
			return nil, &domain.ConfigurationError{ModelID: m.ID, Field: "id", Reason: "duplicate model id"}
		}

		m.SupportedTasks = append([]domain.TaskType(nil), m.SupportedTasks...)
		c.byID[m.ID] = len(c.models)
		c.models = append(c.models, m)
	}

	return c, nil
}

func validateModel(m domain.Model) error {
	if m.CostPerToken <= 0 || math.IsNaN(m.CostPerToken) || math.IsInf(m.CostPerToken, 0) {
		return &domain.ConfigurationError{
			ModelID: m.ID,
			Field:   "cost_per_token",
			Reason:  fmt.Sprintf("must be a finite value greater than zero, got %v", m.CostPerToken),
		}
	}

	if err := validate.Struct(m); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &domain.ConfigurationError{
				ModelID: m.ID,
				Field:   fe.Field(),
				Reason:  fmt.Sprintf("failed %q constraint (value %v)", fe.Tag(), fe.Value()),
			}
		}
		return &domain.ConfigurationError{ModelID: m.ID, Field: "model", Reason: err.Error()}
	}

	return nil
}

// LoadFile reads a catalog from a YAML or JSON file with a top-level "models" list.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var f fileFormat
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &f)
	default:
		err = yaml.Unmarshal(data, &f)
	}
	if err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}

	if len(f.Models) == 0 {
		return nil, &domain.ConfigurationError{Field: "models", Reason: "catalog " + path + " is empty"}
	}

	return New(f.Models)
}

// Models returns a copy of every entry in declaration order.
func (c *Catalog) Models() []domain.Model {
	out := make([]domain.Model, len(c.models))
	copy(out, c.models)
	return out
}

// Available returns the entries whose availability flag is set.
func (c *Catalog) Available() []domain.Model {
	out := make([]domain.Model, 0, len(c.models))
	for _, m := range c.models {
		if m.Availability {
			out = append(out, m)
		}
	}
	return out
}

func (c *Catalog) ByID(id string) (domain.Model, bool) {
	i, ok := c.byID[id]
	if !ok {
		return domain.Model{}, false
	}
	return c.models[i], true
}

func (c *Catalog) Len() int {
	return len(c.models)
}
