// Package catalog loads plan definitions from a YAML seed file.
package catalog

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"investledger/internal/models"
	"investledger/internal/money"
)

type File struct {
	Plans []PlanSpec `yaml:"plans"`
}

// PlanSpec is the external form of a plan, shared by the YAML catalog and
// the admin API.
type PlanSpec struct {
	ID              string `yaml:"id" json:"id"`
	Name            string `yaml:"name" json:"name"`
	DailyReturnRate string `yaml:"daily_return_rate" json:"daily_return_rate"`
	CycleLengthDays int    `yaml:"cycle_length_days" json:"cycle_length_days"`
	MinAmount       int64  `yaml:"min_amount" json:"min_amount"`
	MaxAmount       int64  `yaml:"max_amount" json:"max_amount"`
	MinWithdrawal   int64  `yaml:"min_withdrawal" json:"min_withdrawal"`
	Active          *bool  `yaml:"active" json:"active"`
}

func LoadFile(path string) ([]models.Plan, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open plan catalog %s: %w", path, err)
	}
	defer f.Close()
	return Load(f)
}

func Load(r io.Reader) ([]models.Plan, error) {
	var file File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse plan catalog: %w", err)
	}
	seen := make(map[string]struct{}, len(file.Plans))
	plans := make([]models.Plan, 0, len(file.Plans))
	for i, spec := range file.Plans {
		plan, err := spec.Plan()
		if err != nil {
			return nil, fmt.Errorf("plan %d (%s): %w", i, spec.ID, err)
		}
		if _, dup := seen[plan.ID]; dup {
			return nil, fmt.Errorf("plan %d: duplicate id %q", i, plan.ID)
		}
		seen[plan.ID] = struct{}{}
		plans = append(plans, plan)
	}
	return plans, nil
}

// Plan converts the external form into a model, defaulting Active to true.
func (s PlanSpec) Plan() (models.Plan, error) {
	rate, err := money.ParseRate(s.DailyReturnRate)
	if err != nil {
		return models.Plan{}, fmt.Errorf("daily_return_rate %q must be a positive number", s.DailyReturnRate)
	}
	active := true
	if s.Active != nil {
		active = *s.Active
	}
	plan := models.Plan{
		ID:              s.ID,
		Name:            s.Name,
		DailyReturnRate: rate,
		CycleLengthDays: s.CycleLengthDays,
		MinAmount:       s.MinAmount,
		MaxAmount:       s.MaxAmount,
		MinWithdrawal:   s.MinWithdrawal,
		Active:          active,
	}
	return plan, Validate(plan)
}

var (
	ErrMissingID     = errors.New("id is required")
	ErrMissingName   = errors.New("name is required")
	ErrInvalidRate   = errors.New("daily return rate must be positive")
	ErrInvalidCycle  = errors.New("cycle length must be at least one day")
	ErrInvalidBounds = errors.New("amount bounds are inconsistent")
)

// Validate checks a plan definition. MaxAmount zero means unbounded.
func Validate(plan models.Plan) error {
	switch {
	case plan.ID == "":
		return ErrMissingID
	case plan.Name == "":
		return ErrMissingName
	case !plan.DailyReturnRate.IsPositive():
		return ErrInvalidRate
	case plan.CycleLengthDays < 1:
		return ErrInvalidCycle
	case plan.MinAmount <= 0, plan.MaxAmount < 0, plan.MinWithdrawal < 0:
		return ErrInvalidBounds
	case plan.MaxAmount > 0 && plan.MaxAmount < plan.MinAmount:
		return ErrInvalidBounds
	}
	return nil
}
