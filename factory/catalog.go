/*
Package factory converts vacation-type catalog files into leave.VacationType.

PURPOSE:
  The policy catalog is configuration, not code. HR edits a YAML (or JSON)
  file and the factory turns it into validated VacationType values that the
  Policy Registry serves.

FILE FORMAT:
  vacation_types:
    - code: emergency
      label: Emergency leave
      uses_emergency_balance: true
      max_days_per_request: 3
      yearly_quota: 12

  Omitted flags are false, omitted limits are "no limit", and active
  defaults to true. JSON with the same keys is accepted since YAML is a
  superset of it.

VALIDATION:
  - code is required, lowercase [a-z0-9_], unique within the file
  - a type debits at most one balance
  - limits are positive
  - a fixed-duration type cannot exceed its own max_days_per_request

USAGE:
  f := factory.NewPolicyFactory()
  types, err := f.ParseCatalog(data)

  // Built-in catalog
  types := factory.DefaultCatalog()

SEE ALSO:
  - leave/policies.go: Registry
  - default_catalog.yaml: the shipped catalog
*/
package factory

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/warp/leave-engine/leave"
)

//go:embed default_catalog.yaml
var defaultCatalog []byte

// =============================================================================
// FILE SCHEMA
// =============================================================================

// CatalogFile is the on-disk representation of the catalog.
type CatalogFile struct {
	VacationTypes []VacationTypeYAML `yaml:"vacation_types" json:"vacation_types"`
}

// VacationTypeYAML is one catalog entry.
type VacationTypeYAML struct {
	Code                  string `yaml:"code" json:"code"`
	Label                 string `yaml:"label" json:"label"`
	DeductsRegularBalance bool   `yaml:"deducts_regular_balance,omitempty" json:"deducts_regular_balance,omitempty"`
	UsesEmergencyBalance  bool   `yaml:"uses_emergency_balance,omitempty" json:"uses_emergency_balance,omitempty"`
	FixedDuration         *int   `yaml:"fixed_duration,omitempty" json:"fixed_duration,omitempty"`
	MaxDaysPerRequest     *int   `yaml:"max_days_per_request,omitempty" json:"max_days_per_request,omitempty"`
	YearlyQuota           *int   `yaml:"yearly_quota,omitempty" json:"yearly_quota,omitempty"`
	LifetimeQuota         *int   `yaml:"lifetime_quota,omitempty" json:"lifetime_quota,omitempty"`
	RequiresDocumentation bool   `yaml:"requires_documentation,omitempty" json:"requires_documentation,omitempty"`
	AllowsOverlap         bool   `yaml:"allows_overlap,omitempty" json:"allows_overlap,omitempty"`
	AutoApprove           bool   `yaml:"auto_approve,omitempty" json:"auto_approve,omitempty"`
	Active                *bool  `yaml:"active,omitempty" json:"active,omitempty"`
}

// =============================================================================
// FACTORY
// =============================================================================

type PolicyFactory struct{}

func NewPolicyFactory() *PolicyFactory {
	return &PolicyFactory{}
}

var codePattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// ParseCatalog decodes and validates a catalog document.
func (f *PolicyFactory) ParseCatalog(data []byte) ([]leave.VacationType, error) {
	var file CatalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}
	if len(file.VacationTypes) == 0 {
		return nil, errors.New("invalid catalog: no vacation_types")
	}

	seen := make(map[string]bool, len(file.VacationTypes))
	out := make([]leave.VacationType, 0, len(file.VacationTypes))
	for i, entry := range file.VacationTypes {
		vt, err := f.FromYAML(entry)
		if err != nil {
			return nil, fmt.Errorf("vacation_types[%d]: %w", i, err)
		}
		if seen[vt.Code] {
			return nil, fmt.Errorf("vacation_types[%d]: duplicate code %q", i, vt.Code)
		}
		seen[vt.Code] = true
		out = append(out, vt)
	}
	return out, nil
}

// LoadCatalogFile reads path, or returns the default catalog when path is
// empty.
func (f *PolicyFactory) LoadCatalogFile(path string) ([]leave.VacationType, error) {
	if path == "" {
		return f.ParseCatalog(defaultCatalog)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return f.ParseCatalog(data)
}

// FromYAML validates one entry.
func (f *PolicyFactory) FromYAML(y VacationTypeYAML) (leave.VacationType, error) {
	if y.Code == "" {
		return leave.VacationType{}, errors.New("code is required")
	}
	if !codePattern.MatchString(y.Code) {
		return leave.VacationType{}, fmt.Errorf("code %q must match %s", y.Code, codePattern)
	}
	if y.DeductsRegularBalance && y.UsesEmergencyBalance {
		return leave.VacationType{}, fmt.Errorf("%s: cannot debit both regular and emergency balance", y.Code)
	}
	for name, v := range map[string]*int{
		"fixed_duration":       y.FixedDuration,
		"max_days_per_request": y.MaxDaysPerRequest,
		"yearly_quota":         y.YearlyQuota,
		"lifetime_quota":       y.LifetimeQuota,
	} {
		if v != nil && *v <= 0 {
			return leave.VacationType{}, fmt.Errorf("%s: %s must be positive", y.Code, name)
		}
	}
	if y.FixedDuration != nil && y.MaxDaysPerRequest != nil && *y.FixedDuration > *y.MaxDaysPerRequest {
		return leave.VacationType{}, fmt.Errorf("%s: fixed_duration exceeds max_days_per_request", y.Code)
	}

	label := y.Label
	if label == "" {
		label = y.Code
	}
	active := true
	if y.Active != nil {
		active = *y.Active
	}

	return leave.VacationType{
		Code:                  y.Code,
		Label:                 label,
		DeductsRegularBalance: y.DeductsRegularBalance,
		UsesEmergencyBalance:  y.UsesEmergencyBalance,
		FixedDuration:         y.FixedDuration,
		MaxDaysPerRequest:     y.MaxDaysPerRequest,
		YearlyQuota:           y.YearlyQuota,
		LifetimeQuota:         y.LifetimeQuota,
		RequiresDocumentation: y.RequiresDocumentation,
		AllowsOverlap:         y.AllowsOverlap,
		AutoApprove:           y.AutoApprove,
		Active:                active,
	}, nil
}

// ToYAML converts a VacationType back to its file form.
func (f *PolicyFactory) ToYAML(vt leave.VacationType) VacationTypeYAML {
	active := vt.Active
	return VacationTypeYAML{
		Code:                  vt.Code,
		Label:                 vt.Label,
		DeductsRegularBalance: vt.DeductsRegularBalance,
		UsesEmergencyBalance:  vt.UsesEmergencyBalance,
		FixedDuration:         vt.FixedDuration,
		MaxDaysPerRequest:     vt.MaxDaysPerRequest,
		YearlyQuota:           vt.YearlyQuota,
		LifetimeQuota:         vt.LifetimeQuota,
		RequiresDocumentation: vt.RequiresDocumentation,
		AllowsOverlap:         vt.AllowsOverlap,
		AutoApprove:           vt.AutoApprove,
		Active:                &active,
	}
}

// MarshalCatalog renders types as a catalog document.
func (f *PolicyFactory) MarshalCatalog(types []leave.VacationType) ([]byte, error) {
	file := CatalogFile{VacationTypes: make([]VacationTypeYAML, 0, len(types))}
	for _, vt := range types {
		file.VacationTypes = append(file.VacationTypes, f.ToYAML(vt))
	}
	return yaml.Marshal(file)
}

// DefaultCatalog returns the built-in nine-type catalog.
func DefaultCatalog() []leave.VacationType {
	types, err := NewPolicyFactory().ParseCatalog(defaultCatalog)
	if err != nil {
		panic("factory: invalid default catalog: " + err.Error())
	}
	return types
}
