// Package sqlrepo stores tickets in SQLite (default) or PostgreSQL through sqlx.
package sqlrepo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/gogogo1024/campus-desk/internal/common"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

func init() {
	// modernc registers as "sqlite", which sqlx does not know by name
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// Repo implements common.TicketRepo on a SQL database.
type Repo struct {
	db *sqlx.DB
}

var _ common.TicketRepo = (*Repo)(nil)

// Open connects with driver and runs migrations. SQLite paths get their directory created.
func Open(ctx context.Context, driver, dsn string) (*Repo, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("sqlrepo: dsn is required")
	}
	switch driver {
	case DriverSQLite:
		if !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("sqlrepo: unsupported driver %q", driver)
	}
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// one writer; batches are serialised by the connection
		db.SetMaxOpenConns(1)
	}
	r := New(db)
	if err := r.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

// New wraps an existing handle. Migrations are not run.
func New(db *sqlx.DB) *Repo { return &Repo{db: db} }

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) DB() *sqlx.DB { return r.db }

// Migrate creates the schema if missing. The DDL is valid for both SQLite and PostgreSQL.
func (r *Repo) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tickets (
			id TEXT PRIMARY KEY,
			ticket_number TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL,
			course TEXT NOT NULL DEFAULT '',
			priority TEXT NOT NULL,
			status TEXT NOT NULL,
			created_by TEXT NOT NULL DEFAULT '',
			office_id TEXT,
			office_name TEXT,
			queue_number INTEGER,
			queued_at BIGINT,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL,
			closed_at BIGINT NOT NULL DEFAULT 0,
			events TEXT NOT NULL DEFAULT '[]'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tickets_office_queue ON tickets(office_id, status, queue_number)`,
		`CREATE INDEX IF NOT EXISTS idx_tickets_created_by ON tickets(created_by, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_tickets_category ON tickets(category)`,
	}
	for _, s := range stmts {
		if _, err := r.db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

const columns = `id, ticket_number, title, description, category, course, priority, status, created_by,
	office_id, office_name, queue_number, queued_at, created_at, updated_at, closed_at, events`

type ticketRow struct {
	ID           string         `db:"id"`
	TicketNumber string         `db:"ticket_number"`
	Title        string         `db:"title"`
	Description  string         `db:"description"`
	Category     string         `db:"category"`
	Course       string         `db:"course"`
	Priority     string         `db:"priority"`
	Status       string         `db:"status"`
	CreatedBy    string         `db:"created_by"`
	OfficeID     sql.NullString `db:"office_id"`
	OfficeName   sql.NullString `db:"office_name"`
	QueueNumber  sql.NullInt64  `db:"queue_number"`
	QueuedAt     sql.NullInt64  `db:"queued_at"`
	CreatedAt    int64          `db:"created_at"`
	UpdatedAt    int64          `db:"updated_at"`
	ClosedAt     int64          `db:"closed_at"`
	Events       string         `db:"events"`
}

func toRow(t *common.Ticket) (ticketRow, error) {
	row := ticketRow{
		ID: t.ID, TicketNumber: t.TicketNumber, Title: t.Title, Description: t.Description,
		Category: t.Category, Course: t.Course, Priority: t.Priority, Status: t.Status,
		CreatedBy: t.CreatedBy, CreatedAt: t.CreatedAt, UpdatedAt: t.UpdatedAt, ClosedAt: t.ClosedAt,
	}
	if t.AssignedOffice != nil {
		row.OfficeID = sql.NullString{String: t.AssignedOffice.OfficeID, Valid: true}
		row.OfficeName = sql.NullString{String: t.AssignedOffice.OfficeName, Valid: true}
	}
	if t.QueueNumber != nil {
		row.QueueNumber = sql.NullInt64{Int64: int64(*t.QueueNumber), Valid: true}
	}
	if t.QueuedAt != nil {
		row.QueuedAt = sql.NullInt64{Int64: *t.QueuedAt, Valid: true}
	}
	events := t.Events
	if events == nil {
		events = []common.TicketEvent{}
	}
	b, err := json.Marshal(events)
	if err != nil {
		return row, fmt.Errorf("encode events: %w", err)
	}
	row.Events = string(b)
	return row, nil
}

func (row ticketRow) ticket() (*common.Ticket, error) {
	t := &common.Ticket{
		ID: row.ID, TicketNumber: row.TicketNumber, Title: row.Title, Description: row.Description,
		Category: row.Category, Course: row.Course, Priority: row.Priority, Status: row.Status,
		CreatedBy: row.CreatedBy, CreatedAt: row.CreatedAt, UpdatedAt: row.UpdatedAt, ClosedAt: row.ClosedAt,
	}
	if row.OfficeID.Valid {
		t.AssignedOffice = &common.OfficeAssignment{OfficeID: row.OfficeID.String, OfficeName: row.OfficeName.String}
	}
	if row.QueueNumber.Valid {
		n := int(row.QueueNumber.Int64)
		t.QueueNumber = &n
	}
	if row.QueuedAt.Valid {
		at := row.QueuedAt.Int64
		t.QueuedAt = &at
	}
	if row.Events != "" {
		if err := json.Unmarshal([]byte(row.Events), &t.Events); err != nil {
			return nil, fmt.Errorf("decode events of %s: %w", row.ID, err)
		}
	}
	return t, nil
}

func (r *Repo) Insert(ctx context.Context, t *common.Ticket) error {
	if t == nil || t.ID == "" {
		return common.Invalid("id", "required")
	}
	row, err := toRow(t)
	if err != nil {
		return err
	}
	res, err := r.db.NamedExecContext(ctx, `INSERT INTO tickets (`+columns+`) VALUES (
		:id, :ticket_number, :title, :description, :category, :course, :priority, :status, :created_by,
		:office_id, :office_name, :queue_number, :queued_at, :created_at, :updated_at, :closed_at, :events)
		ON CONFLICT (id) DO NOTHING`, row)
	if err != nil {
		return common.Unavailable("insert ticket", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("ticket %s: %w", t.ID, common.ErrConflict)
	}
	return nil
}

func (r *Repo) Get(ctx context.Context, id string) (*common.Ticket, error) {
	var row ticketRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(`SELECT `+columns+` FROM tickets WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ticket %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, common.Unavailable("get ticket", err)
	}
	return row.ticket()
}

func (r *Repo) Find(ctx context.Context, f common.TicketFilter, sort common.SortSpec, offset, limit int) ([]*common.Ticket, error) {
	where, args, err := r.where(f)
	if err != nil {
		return nil, err
	}
	q := `SELECT ` + columns + ` FROM tickets` + where + ` ORDER BY ` + orderBy(sort)
	if limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", limit)
		if offset > 0 {
			q += fmt.Sprintf(" OFFSET %d", offset)
		}
	} else if offset > 0 {
		// LIMIT ALL is postgres only; a huge limit works on both
		q += fmt.Sprintf(" LIMIT %d OFFSET %d", int64(1)<<62, offset)
	}
	var rows []ticketRow
	if err := r.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, common.Unavailable("find tickets", err)
	}
	out := make([]*common.Ticket, 0, len(rows))
	for _, row := range rows {
		t, err := row.ticket()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (r *Repo) Count(ctx context.Context, f common.TicketFilter) (int, error) {
	where, args, err := r.where(f)
	if err != nil {
		return 0, err
	}
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM tickets`+where, args...); err != nil {
		return 0, common.Unavailable("count tickets", err)
	}
	return n, nil
}

// where renders f with ? placeholders, expands IN lists and rebinds for the driver.
func (r *Repo) where(f common.TicketFilter) (string, []any, error) {
	var (
		conds []string
		args  []any
	)
	if len(f.IDs) > 0 {
		conds = append(conds, "id IN (?)")
		args = append(args, f.IDs)
	}
	if len(f.Status) > 0 {
		conds = append(conds, "status IN (?)")
		args = append(args, f.Status)
	}
	eq := []struct{ col, v string }{
		{"office_id", f.OfficeID}, {"category", f.Category}, {"course", f.Course},
		{"priority", f.Priority}, {"created_by", f.CreatedBy},
	}
	for _, c := range eq {
		if c.v != "" {
			conds = append(conds, c.col+" = ?")
			args = append(args, c.v)
		}
	}
	if f.QueuedOnly {
		conds = append(conds, "queue_number IS NOT NULL")
	}
	if f.Since > 0 {
		conds = append(conds, "created_at >= ?")
		args = append(args, f.Since)
	}
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		like := "%" + q + "%"
		conds = append(conds, "(LOWER(title) LIKE ? OR LOWER(description) LIKE ? OR LOWER(ticket_number) LIKE ? OR LOWER(course) LIKE ?)")
		args = append(args, like, like, like, like)
	}
	if len(conds) == 0 {
		return "", nil, nil
	}
	q, expanded, err := sqlx.In(" WHERE "+strings.Join(conds, " AND "), args...)
	if err != nil {
		return "", nil, fmt.Errorf("build filter: %w", err)
	}
	return r.db.Rebind(q), expanded, nil
}

const priorityRank = `CASE priority WHEN 'Low' THEN 1 WHEN 'Normal' THEN 2 WHEN 'High' THEN 3 WHEN 'Urgent' THEN 4 ELSE 0 END`

func orderBy(s common.SortSpec) string {
	if s.Field == common.SortQueue {
		return "CASE WHEN queue_number IS NULL THEN 1 ELSE 0 END, queue_number, created_at, id"
	}
	dir := "ASC"
	if s.Desc {
		dir = "DESC"
	}
	var key string
	switch s.Field {
	case common.SortUpdatedAt:
		key = "updated_at"
	case common.SortPriority:
		key = priorityRank
	case common.SortStatus:
		key = "status"
	default:
		key = "created_at"
	}
	return key + " " + dir + ", created_at, id"
}

func (r *Repo) Update(ctx context.Context, t *common.Ticket) error {
	row, err := toRow(t)
	if err != nil {
		return err
	}
	// creation fields are left alone so a concurrent RenameCategory is never overwritten
	res, err := r.db.NamedExecContext(ctx, `UPDATE tickets SET
		priority = :priority, status = :status, office_id = :office_id, office_name = :office_name,
		queue_number = :queue_number, queued_at = :queued_at, updated_at = :updated_at,
		closed_at = :closed_at, events = :events
		WHERE id = :id`, row)
	if err != nil {
		return common.Unavailable("update ticket", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("ticket %s: %w", t.ID, common.ErrNotFound)
	}
	return nil
}

// UpdateQueue applies every update in one transaction; a missing ticket rolls back the batch.
func (r *Repo) UpdateQueue(ctx context.Context, updates []common.QueueUpdate) (err error) {
	if len(updates) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return common.Unavailable("begin queue batch", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	stmt := tx.Rebind(`UPDATE tickets SET queue_number = ?, queued_at = ? WHERE id = ?`)
	for _, u := range updates {
		var n, at sql.NullInt64
		if u.QueueNumber != nil {
			n = sql.NullInt64{Int64: int64(*u.QueueNumber), Valid: true}
		}
		if u.QueuedAt != nil {
			at = sql.NullInt64{Int64: *u.QueuedAt, Valid: true}
		}
		res, execErr := tx.ExecContext(ctx, stmt, n, at, u.ID)
		if execErr != nil {
			return common.Unavailable("write queue", execErr)
		}
		if c, rerr := res.RowsAffected(); rerr == nil && c == 0 {
			return fmt.Errorf("ticket %s: %w", u.ID, common.ErrNotFound)
		}
	}
	if err = tx.Commit(); err != nil {
		return common.Unavailable("commit queue batch", err)
	}
	return nil
}

func (r *Repo) RenameCategory(ctx context.Context, from, to string) (int, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE tickets SET category = ? WHERE category = ?`), to, from)
	if err != nil {
		return 0, common.Unavailable("rename category", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, common.Unavailable("rename category", err)
	}
	return int(n), nil
}

func (r *Repo) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return common.Unavailable("ping", err)
	}
	return nil
}
