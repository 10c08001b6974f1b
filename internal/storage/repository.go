package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"

	"moodspend/internal/core"
	"moodspend/internal/ledger"

	_ "modernc.org/sqlite"
)

const (
	recurrencesTable  = "recurrences"
	transactionsTable = "transactions"

	// Fixed width and offset preserving, so the stored text keeps the
	// caller's calendar day.
	txDateLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

var (
	recurrenceColumns = []string{
		"id", "frequency", "amount_cents", "emotion_id", "category_id", "note",
		"start_date", "end_date", "is_active", "user_id", "type",
	}
	transactionColumns = []string{
		"id", "amount_cents", "date", "emotion_id", "category_id", "note",
		"user_id", "type", "attachments", "recurrence_id",
	}
)

// SQLiteRepository persists recurrences and transactions in a local SQLite file.
type SQLiteRepository struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single writer avoids SQLITE_BUSY between the worker's passes.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Question),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Recurrences returns the ledger.RecurrenceStore backed by this repository.
func (r *SQLiteRepository) Recurrences() *RecurrenceRepository {
	return &RecurrenceRepository{r: r}
}

// Transactions returns the ledger.TransactionStore backed by this repository.
func (r *SQLiteRepository) Transactions() *TransactionRepository {
	return &TransactionRepository{r: r}
}

type RecurrenceRepository struct{ r *SQLiteRepository }

var _ ledger.RecurrenceStore = (*RecurrenceRepository)(nil)

func (rr *RecurrenceRepository) ListActive(ctx context.Context) ([]core.RecurrenceDefinition, error) {
	q := rr.r.sb.Select(recurrenceColumns...).
		From(recurrencesTable).
		Where(sq.Eq{"is_active": 1}).
		OrderBy("id")
	out, err := rr.query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list active recurrences: %w", err)
	}
	return out, nil
}

func (rr *RecurrenceRepository) ListAll(ctx context.Context) ([]core.RecurrenceDefinition, error) {
	q := rr.r.sb.Select(recurrenceColumns...).
		From(recurrencesTable).
		OrderBy("start_date DESC", "id DESC")
	out, err := rr.query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list recurrences: %w", err)
	}
	return out, nil
}

// Get returns a single recurrence or ledger.ErrNotFound.
func (rr *RecurrenceRepository) Get(ctx context.Context, id int64) (core.RecurrenceDefinition, error) {
	return rr.get(ctx, rr.r.db, id)
}

func (rr *RecurrenceRepository) Create(ctx context.Context, re core.RecurrenceDefinition) (int64, error) {
	if err := re.Validate(); err != nil {
		return 0, err
	}

	sqlStr, args, err := rr.r.sb.Insert(recurrencesTable).
		Columns("frequency", "amount_cents", "emotion_id", "category_id", "note",
			"start_date", "end_date", "is_active", "user_id", "type").
		Values(string(re.Frequency), re.Amount.Cents, re.EmotionID, re.CategoryID, re.Note,
			re.StartDate.String(), nullableDate(re.EndDate), boolToInt(re.Active), re.OwnerID, string(re.Kind)).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert recurrence: %w", err)
	}

	res, err := rr.r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, fmt.Errorf("insert recurrence: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("recurrence id: %w", err)
	}

	slog.InfoContext(ctx, "Recurrence saved to SQLite",
		"id", id,
		"frequency", re.Frequency,
		"amount_cents", re.Amount.Cents,
		"start_date", re.StartDate.String())

	return id, nil
}

// Update applies the set fields of u inside a transaction. The merged
// definition must still validate.
func (rr *RecurrenceRepository) Update(ctx context.Context, id int64, u core.RecurrenceUpdate) error {
	tx, err := rr.r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback()

	current, err := rr.get(ctx, tx, id)
	if err != nil {
		return err
	}
	if u.IsEmpty() {
		return nil
	}
	if err := u.Apply(current).Validate(); err != nil {
		return err
	}

	sqlStr, args, err := rr.r.sb.Update(recurrencesTable).
		SetMap(updateColumns(u)).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update recurrence: %w", err)
	}
	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("update recurrence %d: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update: %w", err)
	}

	slog.DebugContext(ctx, "Recurrence updated", "id", id)
	return nil
}

func (rr *RecurrenceRepository) Delete(ctx context.Context, id int64) error {
	sqlStr, args, err := rr.r.sb.Delete(recurrencesTable).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete recurrence: %w", err)
	}
	res, err := rr.r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("delete recurrence %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("recurrence %d: %w", id, ledger.ErrNotFound)
	}

	slog.InfoContext(ctx, "Recurrence deleted", "id", id)
	return nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (rr *RecurrenceRepository) get(ctx context.Context, db queryer, id int64) (core.RecurrenceDefinition, error) {
	sqlStr, args, err := rr.r.sb.Select(recurrenceColumns...).
		From(recurrencesTable).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return core.RecurrenceDefinition{}, fmt.Errorf("build get recurrence: %w", err)
	}
	out, err := queryRecurrences(ctx, db, sqlStr, args)
	if err != nil {
		return core.RecurrenceDefinition{}, fmt.Errorf("get recurrence %d: %w", id, err)
	}
	if len(out) == 0 {
		return core.RecurrenceDefinition{}, fmt.Errorf("recurrence %d: %w", id, ledger.ErrNotFound)
	}
	return out[0], nil
}

func (rr *RecurrenceRepository) query(ctx context.Context, q sq.SelectBuilder) ([]core.RecurrenceDefinition, error) {
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return queryRecurrences(ctx, rr.r.db, sqlStr, args)
}

func queryRecurrences(ctx context.Context, db queryer, sqlStr string, args []any) ([]core.RecurrenceDefinition, error) {
	rows, err := db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.RecurrenceDefinition
	for rows.Next() {
		var (
			re         core.RecurrenceDefinition
			freq, kind string
			start      string
			end        sql.NullString
			active     int64
		)
		if err := rows.Scan(&re.ID, &freq, &re.Amount.Cents, &re.EmotionID, &re.CategoryID, &re.Note,
			&start, &end, &active, &re.OwnerID, &kind); err != nil {
			return nil, fmt.Errorf("scan recurrence: %w", err)
		}
		re.Frequency = core.Frequency(freq)
		re.Kind = core.TransactionKind(kind)
		re.Active = active == 1
		if re.StartDate, err = core.ParseDate(start); err != nil {
			return nil, fmt.Errorf("recurrence %d start date: %w", re.ID, err)
		}
		if end.Valid {
			if re.EndDate, err = core.ParseDate(end.String); err != nil {
				return nil, fmt.Errorf("recurrence %d end date: %w", re.ID, err)
			}
		}
		out = append(out, re)
	}
	return out, rows.Err()
}

func updateColumns(u core.RecurrenceUpdate) map[string]any {
	cols := make(map[string]any)
	if u.Frequency != nil {
		cols["frequency"] = string(*u.Frequency)
	}
	if u.Amount != nil {
		cols["amount_cents"] = u.Amount.Cents
	}
	if u.EmotionID != nil {
		cols["emotion_id"] = *u.EmotionID
	}
	if u.CategoryID != nil {
		cols["category_id"] = *u.CategoryID
	}
	if u.Note != nil {
		cols["note"] = *u.Note
	}
	if u.StartDate != nil {
		cols["start_date"] = u.StartDate.String()
	}
	if u.EndDate != nil {
		cols["end_date"] = nullableDate(*u.EndDate)
	}
	if u.Active != nil {
		cols["is_active"] = boolToInt(*u.Active)
	}
	if u.Kind != nil {
		cols["type"] = string(*u.Kind)
	}
	return cols
}

type TransactionRepository struct{ r *SQLiteRepository }

var _ ledger.TransactionStore = (*TransactionRepository)(nil)

func (tr *TransactionRepository) ListAll(ctx context.Context) ([]core.Transaction, error) {
	sqlStr, args, err := tr.r.sb.Select(transactionColumns...).
		From(transactionsTable).
		OrderBy("julianday(date) DESC", "id DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list transactions: %w", err)
	}

	rows, err := tr.r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		var (
			tx          core.Transaction
			date, kind  string
			attachments string
			recID       sql.NullInt64
		)
		if err := rows.Scan(&tx.ID, &tx.Amount.Cents, &date, &tx.EmotionID, &tx.CategoryID, &tx.Note,
			&tx.OwnerID, &kind, &attachments, &recID); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		if tx.Date, err = time.Parse(time.RFC3339Nano, date); err != nil {
			return nil, fmt.Errorf("transaction %d date: %w", tx.ID, err)
		}
		if err := json.Unmarshal([]byte(attachments), &tx.Attachments); err != nil {
			return nil, fmt.Errorf("transaction %d attachments: %w", tx.ID, err)
		}
		tx.Kind = core.TransactionKind(kind)
		if recID.Valid {
			id := recID.Int64
			tx.RecurrenceID = &id
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return out, nil
}

func (tr *TransactionRepository) Create(ctx context.Context, tx core.Transaction) (int64, error) {
	if err := tx.Validate(); err != nil {
		return 0, err
	}

	attachments := tx.Attachments
	if attachments == nil {
		attachments = []string{}
	}
	encoded, err := json.Marshal(attachments)
	if err != nil {
		return 0, fmt.Errorf("encode attachments: %w", err)
	}

	var recID any
	if tx.RecurrenceID != nil {
		recID = *tx.RecurrenceID
	}

	sqlStr, args, err := tr.r.sb.Insert(transactionsTable).
		Columns("amount_cents", "date", "emotion_id", "category_id", "note",
			"user_id", "type", "attachments", "recurrence_id").
		Values(tx.Amount.Cents, tx.Date.Format(txDateLayout), tx.EmotionID, tx.CategoryID, tx.Note,
			tx.OwnerID, string(tx.Kind), string(encoded), recID).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert transaction: %w", err)
	}

	res, err := tr.r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, fmt.Errorf("insert transaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("transaction id: %w", err)
	}

	slog.InfoContext(ctx, "Transaction saved to SQLite",
		"id", id,
		"amount_cents", tx.Amount.Cents,
		"date", tx.Date.Format(time.DateOnly),
		"recurring", tx.RecurrenceID != nil)

	return id, nil
}

func nullableDate(d core.Date) any {
	if d.IsEmpty() {
		return nil
	}
	return d.String()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// IsNotFound reports whether err means the row does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ledger.ErrNotFound)
}
