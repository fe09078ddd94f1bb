package usecase

import (
	"fmt"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"

	"PatternScan/internal/domain/models"
)

var validate = validator.New()

// RunOptions are the per-invocation overrides accepted by every routine.
// Zero values leave the configured market policy untouched.
type RunOptions struct {
	Bars          int     `default:"1000" validate:"gte=1"`
	Group         string  `validate:"omitempty,alphanum"`
	MinProb       float64 `validate:"gte=0,lte=100"`
	ATRTPMult     float64 `validate:"gte=0"`
	TrailActivate float64 `validate:"gte=0,lt=100"` // percent
	MaxHold       int     `validate:"gte=0"`
	Fast          bool
	K             int `default:"4" validate:"gte=1,lte=8"`
}

// Normalize fills defaults, upper-cases the group and validates.
func (o *RunOptions) Normalize() error {
	if err := defaults.Set(o); err != nil {
		return fmt.Errorf("run options defaults: %w", err)
	}
	o.Group = strings.ToUpper(strings.TrimSpace(o.Group))
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("run options: %w", err)
	}
	return nil
}

// Apply returns policy with the command-line overrides applied.
func (o RunOptions) Apply(p models.MarketPolicy) models.MarketPolicy {
	if o.MinProb > 0 {
		p.MinProb = o.MinProb
	}
	if o.ATRTPMult > 0 {
		p.ATRTargetMult = o.ATRTPMult
	}
	if o.TrailActivate > 0 {
		p.TrailActivate = o.TrailActivate / 100
	}
	if o.MaxHold > 0 {
		p.MaxHold = o.MaxHold
	}
	return p
}
