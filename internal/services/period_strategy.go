// Package services provides business logic and orchestration services.
//
// This file implements the Strategy Pattern for advancing a recurrence by one
// period. Each frequency has its own stepper, looked up through a registry.

package services

import (
	"fmt"

	"moodspend/internal/core"
)

// PeriodStepper advances a due date by exactly one period of its frequency.
type PeriodStepper interface {
	Next(d core.Date) core.Date
}

// DailyStepper advances by one calendar day.
type DailyStepper struct{}

func (DailyStepper) Next(d core.Date) core.Date { return d.AddDays(1) }

// WeeklyStepper advances by seven calendar days.
type WeeklyStepper struct{}

func (WeeklyStepper) Next(d core.Date) core.Date { return d.AddDays(7) }

// MonthlyStepper advances by one calendar month, clamping to the last day of
// the target month (Jan 31 -> Feb 29 in a leap year).
type MonthlyStepper struct{}

func (MonthlyStepper) Next(d core.Date) core.Date { return d.AddMonths(1) }

// YearlyStepper advances by one calendar year. Feb 29 becomes Feb 28.
type YearlyStepper struct{}

func (YearlyStepper) Next(d core.Date) core.Date { return d.AddYears(1) }

var periodSteppers = map[core.Frequency]PeriodStepper{
	core.Daily:   DailyStepper{},
	core.Weekly:  WeeklyStepper{},
	core.Monthly: MonthlyStepper{},
	core.Yearly:  YearlyStepper{},
}

// GetPeriodStepper returns the stepper for a frequency.
// Returns an error if the frequency is not supported.
func GetPeriodStepper(frequency core.Frequency) (PeriodStepper, error) {
	stepper, ok := periodSteppers[frequency]
	if !ok {
		return nil, fmt.Errorf("%w: %q", core.ErrInvalidFrequency, string(frequency))
	}
	return stepper, nil
}

// RegisterPeriodStepper adds or replaces the stepper for a frequency.
// Not safe to call concurrently with running passes.
func RegisterPeriodStepper(frequency core.Frequency, stepper PeriodStepper) {
	periodSteppers[frequency] = stepper
}
