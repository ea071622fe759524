/*
Package sqlite provides a SQLite-backed implementation of the dashboard storage.

PURPOSE:
  Persists every collection the PO tracker reads (clients, employees, work
  orders, rate lines, projects, planned hours, timesheets, invoices) plus
  the month-end metric snapshots written by the scheduler. Implements
  loader.Source so the burn engine can be fed straight from the database.

SECTOR SCOPING:
  Every row carries a sector_id and every query filters on it. The store
  never decides which sector is current; callers pass it explicitly.

KEY TABLES:
  work_orders:      Client purchase orders (budget = PO ceiling)
  rate_lines:       Bill rates per work order, one flagged default
  projects:         Project -> work order link used to attribute hours
  planned_hours:    Resource allocations, PK (employee, project, week_ending)
  timesheets:       Actual hours, PK (employee, project, week_ending)
  invoices:         Billed amounts per client and billing month
  metric_snapshots: One burn snapshot per work order per month

MONEY:
  Amounts, hours and rates are stored as decimal strings (TEXT) and parsed
  back into decimal.Decimal. No REAL columns hold money.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In-memory databases are pinned to a
  single connection so every statement sees the same schema.

WAL MODE:
  File databases are opened with WAL (Write-Ahead Logging) so readers don't
  block the writer.

USAGE:
  store, err := sqlite.New("./data/burn.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ds, err := loader.New(store).Load(ctx, "sector-1")

SEE ALSO:
  - loader/loader.go: Source interface
  - store/memory/memory.go: In-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/burn-engine/accrual"
	"github.com/warp/burn-engine/loader"
)

const dateLayout = "2006-01-02"

// Store implements loader.Source and the dashboard CRUD operations.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ loader.Source = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS clients (
		id TEXT NOT NULL,
		sector_id TEXT NOT NULL,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (sector_id, id)
	);

	CREATE TABLE IF NOT EXISTS employees (
		id TEXT NOT NULL,
		sector_id TEXT NOT NULL,
		name TEXT NOT NULL,
		email TEXT,
		role TEXT,
		created_at TEXT NOT NULL,
		PRIMARY KEY (sector_id, id)
	);

	-- Work orders (client purchase orders)
	CREATE TABLE IF NOT EXISTS work_orders (
		id TEXT NOT NULL,
		sector_id TEXT NOT NULL,
		client_id TEXT NOT NULL,
		name TEXT,
		budget TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL DEFAULT 'active',
		start_date TEXT,
		end_date TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (sector_id, id)
	);
	CREATE INDEX IF NOT EXISTS idx_work_orders_client ON work_orders(sector_id, client_id);

	CREATE TABLE IF NOT EXISTS rate_lines (
		id TEXT NOT NULL,
		sector_id TEXT NOT NULL,
		work_order_id TEXT NOT NULL,
		label TEXT NOT NULL,
		bill_rate TEXT NOT NULL,
		is_default BOOLEAN NOT NULL DEFAULT FALSE,
		sort_order INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (sector_id, id),
		FOREIGN KEY (sector_id, work_order_id)
			REFERENCES work_orders(sector_id, id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_rate_lines_work_order ON rate_lines(sector_id, work_order_id);

	-- Links are cleared by DeleteWorkOrder; SET NULL would also null sector_id.
	CREATE TABLE IF NOT EXISTS projects (
		id TEXT NOT NULL,
		sector_id TEXT NOT NULL,
		name TEXT NOT NULL,
		client_id TEXT,
		work_order_id TEXT,
		PRIMARY KEY (sector_id, id),
		FOREIGN KEY (sector_id, work_order_id) REFERENCES work_orders(sector_id, id)
	);
	CREATE INDEX IF NOT EXISTS idx_projects_work_order ON projects(sector_id, work_order_id);

	-- Resource allocations
	CREATE TABLE IF NOT EXISTS planned_hours (
		sector_id TEXT NOT NULL,
		employee_id TEXT NOT NULL,
		project_id TEXT NOT NULL,
		week_ending TEXT NOT NULL,
		planned_hours TEXT NOT NULL,
		rate_line_id TEXT,
		PRIMARY KEY (sector_id, employee_id, project_id, week_ending)
	);
	CREATE INDEX IF NOT EXISTS idx_planned_hours_sector ON planned_hours(sector_id, week_ending);

	CREATE TABLE IF NOT EXISTS timesheets (
		sector_id TEXT NOT NULL,
		employee_id TEXT NOT NULL,
		project_id TEXT NOT NULL,
		week_ending TEXT NOT NULL,
		hours TEXT NOT NULL,
		PRIMARY KEY (sector_id, employee_id, project_id, week_ending)
	);
	CREATE INDEX IF NOT EXISTS idx_timesheets_sector ON timesheets(sector_id, week_ending);

	CREATE TABLE IF NOT EXISTS invoices (
		id TEXT NOT NULL,
		sector_id TEXT NOT NULL,
		client_id TEXT NOT NULL,
		number TEXT,
		amount TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'draft',
		billing_month TEXT NOT NULL,
		PRIMARY KEY (sector_id, id)
	);
	CREATE INDEX IF NOT EXISTS idx_invoices_client ON invoices(sector_id, client_id);

	-- Month-end burn snapshots (written by the scheduler)
	CREATE TABLE IF NOT EXISTS metric_snapshots (
		id TEXT NOT NULL,
		sector_id TEXT NOT NULL,
		work_order_id TEXT NOT NULL,
		month TEXT NOT NULL,
		po_value TEXT NOT NULL,
		invoiced_total TEXT NOT NULL,
		accrued_total TEXT NOT NULL,
		remaining TEXT NOT NULL,
		variance TEXT NOT NULL,
		monthly_burn TEXT NOT NULL,
		months_remaining TEXT,
		burn_pct TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (sector_id, id)
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_metric_snapshots_unique
		ON metric_snapshots(sector_id, work_order_id, month);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"metric_snapshots", "invoices", "timesheets", "planned_hours",
		"projects", "rate_lines", "work_orders", "employees", "clients"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// CLIENTS & EMPLOYEES
// =============================================================================

type Client struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// SaveClient saves a client.
func (s *Store) SaveClient(ctx context.Context, sectorID string, c Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO clients (id, sector_id, name, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(sector_id, id) DO UPDATE SET name = excluded.name
	`, c.ID, sectorID, c.Name, time.Now().UTC().Format(time.RFC3339))
	return err
}

// ListClients returns a sector's clients.
func (s *Store) ListClients(ctx context.Context, sectorID string) ([]Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, created_at FROM clients WHERE sector_id = ? ORDER BY name", sectorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clients []Client
	for rows.Next() {
		var c Client
		var createdAt string
		if err := rows.Scan(&c.ID, &c.Name, &createdAt); err != nil {
			return nil, err
		}
		c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

// Employee represents an employee record.
type Employee struct {
	ID        string
	Name      string
	Email     string
	Role      string
	CreatedAt time.Time
}

// SaveEmployee saves an employee.
func (s *Store) SaveEmployee(ctx context.Context, sectorID string, emp Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO employees (id, sector_id, name, email, role, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(sector_id, id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			role = excluded.role
	`, emp.ID, sectorID, emp.Name, emp.Email, emp.Role, time.Now().UTC().Format(time.RFC3339))
	return err
}

// ListEmployees returns a sector's employees.
func (s *Store) ListEmployees(ctx context.Context, sectorID string) ([]Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, COALESCE(email, ''), COALESCE(role, ''), created_at FROM employees WHERE sector_id = ? ORDER BY name",
		sectorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var employees []Employee
	for rows.Next() {
		var emp Employee
		var createdAt string
		if err := rows.Scan(&emp.ID, &emp.Name, &emp.Email, &emp.Role, &createdAt); err != nil {
			return nil, err
		}
		emp.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		employees = append(employees, emp)
	}
	return employees, rows.Err()
}

// =============================================================================
// WORK ORDERS & RATE LINES
// =============================================================================

// SaveWorkOrder inserts or updates a work order.
func (s *Store) SaveWorkOrder(ctx context.Context, sectorID string, wo accrual.WorkOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO work_orders (id, sector_id, client_id, name, budget, status, start_date, end_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(sector_id, id) DO UPDATE SET
			client_id = excluded.client_id,
			name = excluded.name,
			budget = excluded.budget,
			status = excluded.status,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			updated_at = excluded.updated_at
	`, wo.ID, sectorID, wo.ClientID, wo.Name, wo.Budget.String(), wo.Status,
		nullDate(wo.StartDate), nullDate(wo.EndDate), now, now)
	return err
}

const workOrderColumns = "id, client_id, COALESCE(name, ''), budget, status, start_date, end_date"

// GetWorkOrder retrieves a work order by ID. Returns nil if not found.
func (s *Store) GetWorkOrder(ctx context.Context, sectorID string, id accrual.WorkOrderID) (*accrual.WorkOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT "+workOrderColumns+" FROM work_orders WHERE sector_id = ? AND id = ?", sectorID, id)
	wo, err := scanWorkOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &wo, nil
}

// ListWorkOrders returns a sector's work orders.
func (s *Store) ListWorkOrders(ctx context.Context, sectorID string) ([]accrual.WorkOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+workOrderColumns+" FROM work_orders WHERE sector_id = ? ORDER BY id", sectorID)
	if err != nil {
		return nil, fmt.Errorf("failed to query work orders: %w", err)
	}
	defer rows.Close()

	var out []accrual.WorkOrder
	for rows.Next() {
		wo, err := scanWorkOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, wo)
	}
	return out, rows.Err()
}

// DeleteWorkOrder removes a work order and its rate lines. Projects linked
// to it stay in the sector, unlinked.
func (s *Store) DeleteWorkOrder(ctx context.Context, sectorID string, id accrual.WorkOrderID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"UPDATE projects SET work_order_id = NULL WHERE sector_id = ? AND work_order_id = ?", sectorID, id); err != nil {
		return fmt.Errorf("failed to unlink projects: %w", err)
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM work_orders WHERE sector_id = ? AND id = ?", sectorID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("work order %s: %w", id, loader.ErrNotFound)
	}
	return tx.Commit()
}

// SaveRateLine inserts or updates a rate line.
func (s *Store) SaveRateLine(ctx context.Context, sectorID string, rl accrual.RateLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rate_lines (id, sector_id, work_order_id, label, bill_rate, is_default, sort_order)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(sector_id, id) DO UPDATE SET
			label = excluded.label,
			bill_rate = excluded.bill_rate,
			is_default = excluded.is_default,
			sort_order = excluded.sort_order
	`, rl.ID, sectorID, rl.WorkOrderID, rl.Label, rl.BillRate.String(), rl.IsDefault, rl.SortOrder)
	if isForeignKeyError(err) {
		return fmt.Errorf("work order %s: %w", rl.WorkOrderID, loader.ErrNotFound)
	}
	return err
}

// ListRateLines returns a sector's rate lines ordered by work order and sort order.
func (s *Store) ListRateLines(ctx context.Context, sectorID string) ([]accrual.RateLine, error) {
	return s.queryRateLines(ctx,
		"SELECT id, work_order_id, label, bill_rate, is_default, sort_order FROM rate_lines WHERE sector_id = ? ORDER BY work_order_id, sort_order, id",
		sectorID)
}

// ListRateLinesByWorkOrder returns one work order's rate lines.
func (s *Store) ListRateLinesByWorkOrder(ctx context.Context, sectorID string, woID accrual.WorkOrderID) ([]accrual.RateLine, error) {
	return s.queryRateLines(ctx,
		"SELECT id, work_order_id, label, bill_rate, is_default, sort_order FROM rate_lines WHERE sector_id = ? AND work_order_id = ? ORDER BY sort_order, id",
		sectorID, woID)
}

func (s *Store) queryRateLines(ctx context.Context, query string, args ...any) ([]accrual.RateLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rate lines: %w", err)
	}
	defer rows.Close()

	var out []accrual.RateLine
	for rows.Next() {
		var rl accrual.RateLine
		var rate string
		if err := rows.Scan(&rl.ID, &rl.WorkOrderID, &rl.Label, &rate, &rl.IsDefault, &rl.SortOrder); err != nil {
			return nil, err
		}
		rl.BillRate = parseDecimal(rate)
		out = append(out, rl)
	}
	return out, rows.Err()
}

// =============================================================================
// PROJECTS
// =============================================================================

// SaveProject inserts or updates a project.
func (s *Store) SaveProject(ctx context.Context, sectorID string, p loader.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, sector_id, name, client_id, work_order_id)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(sector_id, id) DO UPDATE SET
			name = excluded.name,
			client_id = excluded.client_id,
			work_order_id = excluded.work_order_id
	`, p.ID, sectorID, p.Name, nullString(string(p.ClientID)), nullString(string(p.WorkOrderID)))
	if isForeignKeyError(err) {
		return fmt.Errorf("work order %s: %w", p.WorkOrderID, loader.ErrNotFound)
	}
	return err
}

// ListProjects returns a sector's projects.
func (s *Store) ListProjects(ctx context.Context, sectorID string) ([]loader.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, COALESCE(client_id, ''), COALESCE(work_order_id, '') FROM projects WHERE sector_id = ? ORDER BY name",
		sectorID)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer rows.Close()

	var out []loader.Project
	for rows.Next() {
		var p loader.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.ClientID, &p.WorkOrderID); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// =============================================================================
// HOURS
// =============================================================================

// SavePlannedHours upserts an allocation by (employee, project, week_ending).
func (s *Store) SavePlannedHours(ctx context.Context, sectorID string, p accrual.PlannedHours) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO planned_hours (sector_id, employee_id, project_id, week_ending, planned_hours, rate_line_id)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(sector_id, employee_id, project_id, week_ending) DO UPDATE SET
			planned_hours = excluded.planned_hours,
			rate_line_id = excluded.rate_line_id
	`, sectorID, p.EmployeeID, p.ProjectID, p.WeekEnding.Format(dateLayout), p.Hours.String(), nullString(string(p.RateLineID)))
	return err
}

// ListPlannedHours returns a sector's allocations. WorkOrderID is left empty;
// the loader links it from projects.
func (s *Store) ListPlannedHours(ctx context.Context, sectorID string) ([]accrual.PlannedHours, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT employee_id, project_id, week_ending, planned_hours, COALESCE(rate_line_id, '')
		FROM planned_hours WHERE sector_id = ?
		ORDER BY week_ending, employee_id, project_id
	`, sectorID)
	if err != nil {
		return nil, fmt.Errorf("failed to query planned hours: %w", err)
	}
	defer rows.Close()

	var out []accrual.PlannedHours
	for rows.Next() {
		var p accrual.PlannedHours
		var week, hours string
		if err := rows.Scan(&p.EmployeeID, &p.ProjectID, &week, &hours, &p.RateLineID); err != nil {
			return nil, err
		}
		p.WeekEnding, _ = time.Parse(dateLayout, week)
		p.Hours = parseDecimal(hours)
		out = append(out, p)
	}
	return out, rows.Err()
}

// SaveTimesheet upserts actual hours by (employee, project, week_ending).
func (s *Store) SaveTimesheet(ctx context.Context, sectorID string, ts accrual.Timesheet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO timesheets (sector_id, employee_id, project_id, week_ending, hours)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(sector_id, employee_id, project_id, week_ending) DO UPDATE SET
			hours = excluded.hours
	`, sectorID, ts.EmployeeID, ts.ProjectID, ts.WeekEnding.Format(dateLayout), ts.Hours.String())
	return err
}

// ListTimesheets returns a sector's actual hours.
func (s *Store) ListTimesheets(ctx context.Context, sectorID string) ([]accrual.Timesheet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT employee_id, project_id, week_ending, hours
		FROM timesheets WHERE sector_id = ?
		ORDER BY week_ending, employee_id, project_id
	`, sectorID)
	if err != nil {
		return nil, fmt.Errorf("failed to query timesheets: %w", err)
	}
	defer rows.Close()

	var out []accrual.Timesheet
	for rows.Next() {
		var ts accrual.Timesheet
		var week, hours string
		if err := rows.Scan(&ts.EmployeeID, &ts.ProjectID, &week, &hours); err != nil {
			return nil, err
		}
		ts.WeekEnding, _ = time.Parse(dateLayout, week)
		ts.Hours = parseDecimal(hours)
		out = append(out, ts)
	}
	return out, rows.Err()
}

// =============================================================================
// INVOICES
// =============================================================================

// SaveInvoice inserts or updates an invoice.
func (s *Store) SaveInvoice(ctx context.Context, sectorID string, inv accrual.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO invoices (id, sector_id, client_id, number, amount, status, billing_month)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(sector_id, id) DO UPDATE SET
			client_id = excluded.client_id,
			number = excluded.number,
			amount = excluded.amount,
			status = excluded.status,
			billing_month = excluded.billing_month
	`, inv.ID, sectorID, inv.ClientID, inv.Number, inv.Amount.String(), inv.Status, inv.BillingMonth.Format(dateLayout))
	return err
}

// ListInvoices returns a sector's invoices, all statuses.
func (s *Store) ListInvoices(ctx context.Context, sectorID string) ([]accrual.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, client_id, COALESCE(number, ''), amount, status, billing_month
		FROM invoices WHERE sector_id = ?
		ORDER BY billing_month, id
	`, sectorID)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoices: %w", err)
	}
	defer rows.Close()

	var out []accrual.Invoice
	for rows.Next() {
		var inv accrual.Invoice
		var amount, month string
		if err := rows.Scan(&inv.ID, &inv.ClientID, &inv.Number, &amount, &inv.Status, &month); err != nil {
			return nil, err
		}
		inv.Amount = parseDecimal(amount)
		inv.BillingMonth, _ = time.Parse(dateLayout, month)
		out = append(out, inv)
	}
	return out, rows.Err()
}

// =============================================================================
// METRIC SNAPSHOTS
// =============================================================================

// Snapshot is a persisted copy of one work order's metrics for a month.
type Snapshot struct {
	ID              string
	WorkOrderID     accrual.WorkOrderID
	Month           accrual.MonthKey
	POValue         decimal.Decimal
	InvoicedTotal   decimal.Decimal
	AccruedTotal    decimal.Decimal
	Remaining       decimal.Decimal
	Variance        decimal.Decimal
	MonthlyBurn     decimal.Decimal
	MonthsRemaining *decimal.Decimal
	BurnPct         decimal.Decimal
	CreatedAt       time.Time
}

// ErrSnapshotExists is returned when a work order already has a snapshot
// for the month.
var ErrSnapshotExists = errors.New("snapshot already exists for month")

// SaveSnapshot stores a snapshot. A second snapshot for the same work order
// and month is rejected with ErrSnapshotExists.
func (s *Store) SaveSnapshot(ctx context.Context, sectorID string, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var monthsRemaining sql.NullString
	if snap.MonthsRemaining != nil {
		monthsRemaining = sql.NullString{String: snap.MonthsRemaining.String(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO metric_snapshots
		(id, sector_id, work_order_id, month, po_value, invoiced_total, accrued_total,
		 remaining, variance, monthly_burn, months_remaining, burn_pct, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, snap.ID, sectorID, snap.WorkOrderID, snap.Month,
		snap.POValue.String(), snap.InvoicedTotal.String(), snap.AccruedTotal.String(),
		snap.Remaining.String(), snap.Variance.String(), snap.MonthlyBurn.String(),
		monthsRemaining, snap.BurnPct.String(), time.Now().UTC().Format(time.RFC3339))
	if isUniqueConstraintError(err) {
		return ErrSnapshotExists
	}
	return err
}

// HasSnapshot reports whether a sector's work order has a snapshot for the month.
func (s *Store) HasSnapshot(ctx context.Context, sectorID string, woID accrual.WorkOrderID, month accrual.MonthKey) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM metric_snapshots WHERE sector_id = ? AND work_order_id = ? AND month = ?",
		sectorID, woID, month,
	).Scan(&count)
	return count > 0, err
}

// ListSnapshots returns a work order's snapshots, oldest month first.
func (s *Store) ListSnapshots(ctx context.Context, sectorID string, woID accrual.WorkOrderID) ([]Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, work_order_id, month, po_value, invoiced_total, accrued_total,
		       remaining, variance, monthly_burn, months_remaining, burn_pct, created_at
		FROM metric_snapshots WHERE sector_id = ? AND work_order_id = ?
		ORDER BY month
	`, sectorID, woID)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var snap Snapshot
		var po, invoiced, accrued, remaining, variance, burn, pct, createdAt string
		var monthsRemaining sql.NullString
		if err := rows.Scan(&snap.ID, &snap.WorkOrderID, &snap.Month, &po, &invoiced, &accrued,
			&remaining, &variance, &burn, &monthsRemaining, &pct, &createdAt); err != nil {
			return nil, err
		}
		snap.POValue = parseDecimal(po)
		snap.InvoicedTotal = parseDecimal(invoiced)
		snap.AccruedTotal = parseDecimal(accrued)
		snap.Remaining = parseDecimal(remaining)
		snap.Variance = parseDecimal(variance)
		snap.MonthlyBurn = parseDecimal(burn)
		snap.BurnPct = parseDecimal(pct)
		if monthsRemaining.Valid {
			m := parseDecimal(monthsRemaining.String)
			snap.MonthsRemaining = &m
		}
		snap.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, snap)
	}
	return out, rows.Err()
}

// Helper functions

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkOrder(row rowScanner) (accrual.WorkOrder, error) {
	var wo accrual.WorkOrder
	var budget string
	var start, end sql.NullString
	if err := row.Scan(&wo.ID, &wo.ClientID, &wo.Name, &budget, &wo.Status, &start, &end); err != nil {
		return wo, err
	}
	wo.Budget = parseDecimal(budget)
	wo.StartDate = parseNullDate(start)
	wo.EndDate = parseNullDate(end)
	return wo, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullDate(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(dateLayout), Valid: true}
}

func parseNullDate(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(dateLayout, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}

func isForeignKeyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
