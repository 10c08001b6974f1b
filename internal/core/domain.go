package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
	Yearly  Frequency = "yearly"
)

const (
	KindExpense TransactionKind = "expense"
	KindSaving  TransactionKind = "saving"
)

// RecurrenceMarker is appended to the note of every transaction the projector creates.
const RecurrenceMarker = " (Recurring)"

const maxNoteLength = 500

type (
	Frequency       string
	TransactionKind string

	// Date is a calendar date. Time-of-day is always midnight.
	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	RecurrenceDefinition struct {
		ID         int64 // 0 until persisted
		Frequency  Frequency
		Amount     Money
		EmotionID  int64
		CategoryID int64
		Note       string
		StartDate  Date
		EndDate    Date // zero means open-ended; inclusive otherwise
		Active     bool
		OwnerID    int64
		Kind       TransactionKind
	}

	// RecurrenceUpdate is a partial update. Nil fields are left untouched.
	RecurrenceUpdate struct {
		Frequency  *Frequency
		Amount     *Money
		EmotionID  *int64
		CategoryID *int64
		Note       *string
		StartDate  *Date
		EndDate    *Date // pointer to a zero Date clears the end date
		Active     *bool
		Kind       *TransactionKind
	}

	Transaction struct {
		ID           int64
		Amount       Money
		Date         time.Time
		EmotionID    int64
		CategoryID   int64
		Note         string
		OwnerID      int64
		Kind         TransactionKind
		Attachments  []string
		RecurrenceID *int64 // nil for user-created transactions
	}
)

var (
	ErrInvalidDay       = errors.New("invalid day")
	ErrInvalidMonth     = errors.New("invalid month")
	ErrZeroDate         = errors.New("date cannot be zero")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidFrequency = errors.New("invalid frequency")
	ErrInvalidKind      = errors.New("invalid transaction kind")
	ErrMissingEmotion   = errors.New("emotion is required")
	ErrMissingCategory  = errors.New("category is required")
	ErrEndBeforeStart   = errors.New("end date must not be before start date")
	ErrNoteTooLong      = errors.New("note too long")
)

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrZeroDate
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar date in t's own location.
func DateOf(t time.Time) Date {
	if t.IsZero() {
		return Date{}
	}
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// IsEmpty returns true if the date is zero (used for optional dates)
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

// String formats the date as YYYY-MM-DD, or "" for an empty date.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(time.DateOnly)
}

// ParseDate parses a YYYY-MM-DD string. An empty string yields an empty Date.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return Date{Time: t}, nil
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (f Frequency) Validate() error {
	switch f {
	case Daily, Weekly, Monthly, Yearly:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidFrequency, string(f))
	}
}

func (k TransactionKind) Validate() error {
	switch k {
	case KindExpense, KindSaving:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidKind, string(k))
	}
}

// NewRecurrence builds an active recurrence. Callers still run Validate.
func NewRecurrence(freq Frequency, amount Money, emotionID, categoryID int64, note string, start, end Date, ownerID int64, kind TransactionKind) RecurrenceDefinition {
	return RecurrenceDefinition{
		Frequency:  freq,
		Amount:     amount,
		EmotionID:  emotionID,
		CategoryID: categoryID,
		Note:       note,
		StartDate:  start,
		EndDate:    end,
		Active:     true,
		OwnerID:    ownerID,
		Kind:       kind,
	}
}

func (re RecurrenceDefinition) Validate() error {
	if err := re.StartDate.Validate(); err != nil {
		return fmt.Errorf("invalid start date: %w", err)
	}

	if !re.EndDate.IsZero() {
		if err := re.EndDate.Validate(); err != nil {
			return fmt.Errorf("invalid end date: %w", err)
		}
		if re.EndDate.Before(re.StartDate.Time) {
			return ErrEndBeforeStart
		}
	}

	if err := re.Frequency.Validate(); err != nil {
		return err
	}
	if err := re.Amount.Validate(); err != nil {
		return err
	}
	if re.EmotionID == 0 {
		return ErrMissingEmotion
	}
	if re.CategoryID == 0 {
		return ErrMissingCategory
	}
	if len(re.Note) > maxNoteLength {
		return ErrNoteTooLong
	}
	return re.Kind.Validate()
}

// HasEnded reports whether d lies strictly after the recurrence's end date.
func (re RecurrenceDefinition) HasEnded(d Date) bool {
	return !re.EndDate.IsZero() && d.After(re.EndDate.Time)
}

// Apply returns a copy of re with the set fields of u applied.
func (u RecurrenceUpdate) Apply(re RecurrenceDefinition) RecurrenceDefinition {
	if u.Frequency != nil {
		re.Frequency = *u.Frequency
	}
	if u.Amount != nil {
		re.Amount = *u.Amount
	}
	if u.EmotionID != nil {
		re.EmotionID = *u.EmotionID
	}
	if u.CategoryID != nil {
		re.CategoryID = *u.CategoryID
	}
	if u.Note != nil {
		re.Note = *u.Note
	}
	if u.StartDate != nil {
		re.StartDate = *u.StartDate
	}
	if u.EndDate != nil {
		re.EndDate = *u.EndDate
	}
	if u.Active != nil {
		re.Active = *u.Active
	}
	if u.Kind != nil {
		re.Kind = *u.Kind
	}
	return re
}

// IsEmpty reports whether no field is set.
func (u RecurrenceUpdate) IsEmpty() bool {
	return u.Frequency == nil && u.Amount == nil && u.EmotionID == nil &&
		u.CategoryID == nil && u.Note == nil && u.StartDate == nil &&
		u.EndDate == nil && u.Active == nil && u.Kind == nil
}

// Deactivate returns an update that only clears the active flag.
func Deactivate() RecurrenceUpdate {
	inactive := false
	return RecurrenceUpdate{Active: &inactive}
}

func (t Transaction) Validate() error {
	if t.Date.IsZero() {
		return ErrZeroDate
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if t.EmotionID == 0 {
		return ErrMissingEmotion
	}
	if t.CategoryID == 0 {
		return ErrMissingCategory
	}
	if len(t.Note) > maxNoteLength+len(RecurrenceMarker) {
		return ErrNoteTooLong
	}
	return t.Kind.Validate()
}

// IsRecurring reports whether the transaction was created by the projector,
// either through an explicit link or the note marker of older rows.
func (t Transaction) IsRecurring() bool {
	return t.RecurrenceID != nil || strings.Contains(t.Note, RecurrenceMarker)
}
