package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"

	"coincast/internal/errs"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	// report flag or yaml names instead of Go field names
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"flag", "yaml"} {
			if name := strings.Split(f.Tag.Get(tag), ",")[0]; name != "" && name != "-" {
				return name
			}
		}
		return f.Name
	})
}

// RunConfig is the validated configuration of one forecast run
type RunConfig struct {
	Coin     string `flag:"coin" validate:"required,alphanum,max=10"`
	Forecast int    `flag:"forecast" default:"10" validate:"oneof=10 20 30"`
	Range    int    `flag:"range" default:"90" validate:"min=30,max=365"`
	Save     string `flag:"save"`
	Compare  bool   `flag:"compare"`
	Format   string `flag:"format" default:"table" validate:"oneof=table json"`
	NoChart  bool   `flag:"no-chart"`
}

// Prepare fills defaults, normalizes the coin symbol and validates
func (r *RunConfig) Prepare() error {
	if err := defaults.Set(r); err != nil {
		return fmt.Errorf("setting run defaults: %w", err)
	}
	r.Coin = strings.ToUpper(strings.TrimSpace(r.Coin))
	if err := validate.Struct(r); err != nil {
		return toValidationError(err)
	}
	if r.Save != "" {
		switch strings.ToLower(filepath.Ext(r.Save)) {
		case ".json", ".csv":
		default:
			return errs.Validation("save", "must end in .json or .csv")
		}
	}
	return nil
}

// BacktestRunConfig is the validated configuration of one backtest run
type BacktestRunConfig struct {
	Coin            string `flag:"coin" validate:"required,alphanum,max=10"`
	Periods         int    `flag:"periods" default:"5" validate:"min=1,max=20"`
	ForecastDays    int    `flag:"forecast" default:"10" validate:"oneof=10 20 30"`
	HistoricalRange int    `flag:"range" default:"90" validate:"min=30,max=365"`
	MinDataPoints   int    `flag:"min-data" default:"20" validate:"min=20"`
	Strategies      bool   `flag:"strategies"`
}

// Prepare fills defaults, normalizes the coin symbol and validates
func (b *BacktestRunConfig) Prepare() error {
	if err := defaults.Set(b); err != nil {
		return fmt.Errorf("setting backtest defaults: %w", err)
	}
	b.Coin = strings.ToUpper(strings.TrimSpace(b.Coin))
	if err := validate.Struct(b); err != nil {
		return toValidationError(err)
	}
	if b.MinDataPoints > b.HistoricalRange {
		return errs.Validation("min-data", "must not exceed range (%d)", b.HistoricalRange)
	}
	return nil
}

// toValidationError reports the first failed field
func toValidationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &errs.ValidationError{Reason: err.Error()}
	}
	fe := fieldErrs[0]
	return &errs.ValidationError{Field: fieldPath(fe), Reason: message(fe)}
}

// fieldPath drops the root struct name from the namespace
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "alphanum":
		return "must be alphanumeric"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "gt":
		return "must be greater than " + fe.Param()
	case "url":
		return "must be a valid URL"
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}
