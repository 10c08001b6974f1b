package log

import "moodspend/internal/core"

// Common field names for structured logging
const (
	FieldComponent    = "component"
	FieldRunID        = "run_id"
	FieldError        = "error"
	FieldOperation    = "operation"
	FieldRecurrenceID = "recurrence_id"
	FieldTransaction  = "transaction_id"
	FieldFrequency    = "frequency"
	FieldAmountCents  = "amount_cents"
	FieldEmotionID    = "emotion_id"
	FieldCategoryID   = "category_id"
	FieldKind         = "kind"
	FieldDueDate      = "due_date"
	FieldCreated      = "created"
	FieldDurationMs   = "duration_ms"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentRecurring = "recurring"
	ComponentLedger    = "ledger"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentBackend   = "backend"
	ComponentCLI       = "cli"
)

// Operations defines standard operation names
const (
	OpCreate      = "create"
	OpUpdate      = "update"
	OpDelete      = "delete"
	OpList        = "list"
	OpMaterialize = "materialize"
	OpDeactivate  = "deactivate"
	OpProcess     = "process"
	OpPublish     = "publish"
	OpShutdown    = "shutdown"
	OpStartup     = "startup"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithRunID(id string) LogFields {
	f[FieldRunID] = id
	return f
}

// WithError adds the error text; nil errors are skipped.
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithRecurrence adds the identifying fields of a recurrence.
func (f LogFields) WithRecurrence(re core.RecurrenceDefinition) LogFields {
	f[FieldRecurrenceID] = re.ID
	f[FieldFrequency] = string(re.Frequency)
	f[FieldAmountCents] = re.Amount.Cents
	f[FieldEmotionID] = re.EmotionID
	f[FieldCategoryID] = re.CategoryID
	f[FieldKind] = string(re.Kind)
	return f
}

func (f LogFields) WithDueDate(d core.Date) LogFields {
	f[FieldDueDate] = d.String()
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
