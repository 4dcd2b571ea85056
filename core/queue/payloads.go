package queue

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is shared across enqueue calls; the validator caches struct
// metadata internally and is safe for concurrent use.
var validate = validator.New(validator.WithRequiredStructEnabled())

// Payload is the tagged union over known job kinds. Each kind carries a
// statically validated schema checked at enqueue time, not deferred to
// handler execution.
type Payload interface {
	JobType() JobType
}

// ImportPayload describes a data import from an external source.
type ImportPayload struct {
	Source    string `json:"source" validate:"required"`
	Format    string `json:"format" validate:"required,oneof=csv json xml"`
	MappingID string `json:"mapping_id,omitempty"`
	Truncate  bool   `json:"truncate,omitempty"`
}

func (ImportPayload) JobType() JobType { return JobTypeImport }

// CalculatePayload describes a recalculation over a dataset and period.
type CalculatePayload struct {
	Dataset     string `json:"dataset" validate:"required"`
	PeriodStart string `json:"period_start" validate:"required,datetime=2006-01-02"`
	PeriodEnd   string `json:"period_end" validate:"required,datetime=2006-01-02"`
	Incremental bool   `json:"incremental,omitempty"`
}

func (CalculatePayload) JobType() JobType { return JobTypeCalculate }

// ExportPayload describes an export of calculated results to a destination.
type ExportPayload struct {
	Destination string `json:"destination" validate:"required"`
	Format      string `json:"format" validate:"required,oneof=csv json pdf"`
	Compress    bool   `json:"compress,omitempty"`
}

func (ExportPayload) JobType() JobType { return JobTypeExport }

// ValidatePayload checks a payload against its schema. Failures are
// returned as a non-retryable *ValidationError.
func ValidatePayload(p Payload) error {
	if p == nil {
		return ErrNilPayload
	}
	if !p.JobType().Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidJobType, p.JobType())
	}
	if err := validate.Struct(p); err != nil {
		return &ValidationError{JobType: p.JobType(), Err: err}
	}
	return nil
}

// decodePayload unmarshals raw payload bytes into the typed form for the
// given job kind and re-validates the result.
func decodePayload(t JobType, raw json.RawMessage) (Payload, error) {
	var p Payload
	switch t {
	case JobTypeImport:
		var v ImportPayload
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, &ValidationError{JobType: t, Err: err}
		}
		p = v
	case JobTypeCalculate:
		var v CalculatePayload
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, &ValidationError{JobType: t, Err: err}
		}
		p = v
	case JobTypeExport:
		var v ExportPayload
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, &ValidationError{JobType: t, Err: err}
		}
		p = v
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidJobType, t)
	}

	if err := ValidatePayload(p); err != nil {
		return nil, err
	}
	return p, nil
}
