/*
Package loader is the data-access collaborator of the burn engine.

PURPOSE:
  Fetches everything the engine needs for one sector and hands it over as
  plain in-memory collections. The engine never sees a sector id; scoping
  happens here, once, on every read.

LOAD SEQUENCE:
  1. Issue the six independent reads in parallel (work orders, rate lines,
     projects, planned hours, timesheets, invoices)
  2. First failure cancels the remaining reads
  3. Join project -> work order onto every hours record
  4. Return a Dataset that can be computed as of any date

DATA INCONSISTENCY:
  Hours on a project that is unknown, or known but not linked to a work
  order, keep an empty WorkOrderID. The engine then attributes them to no
  work order, silently.

USAGE:
  l := loader.New(store)
  ds, err := l.Load(ctx, "sector-1")
  if err != nil {
      return err
  }
  metrics := ds.Compute(time.Now())

SEE ALSO:
  - store/sqlite/sqlite.go: production Source
  - store/memory/memory.go: in-memory Source
  - accrual/engine.go: ComputeWorkOrderMetrics
*/
package loader

import (
	"context"
	"fmt"
	"time"

	"github.com/warp/burn-engine/accrual"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// SOURCE - What a backing store must provide
// =============================================================================

// Project links hours to a work order. WorkOrderID is empty for projects
// that are not billed against a PO.
type Project struct {
	ID          accrual.ProjectID `validate:"required"`
	Name        string            `validate:"required"`
	ClientID    accrual.ClientID
	WorkOrderID accrual.WorkOrderID
}

// Source reads sector-scoped collections. Every method must return only
// records belonging to sectorID.
type Source interface {
	ListWorkOrders(ctx context.Context, sectorID string) ([]accrual.WorkOrder, error)
	ListRateLines(ctx context.Context, sectorID string) ([]accrual.RateLine, error)
	ListProjects(ctx context.Context, sectorID string) ([]Project, error)
	ListPlannedHours(ctx context.Context, sectorID string) ([]accrual.PlannedHours, error)
	ListTimesheets(ctx context.Context, sectorID string) ([]accrual.Timesheet, error)
	ListInvoices(ctx context.Context, sectorID string) ([]accrual.Invoice, error)
}

// =============================================================================
// DATASET - One sector's engine inputs
// =============================================================================

type Dataset struct {
	SectorID     string
	WorkOrders   []accrual.WorkOrder
	RateLines    []accrual.RateLine
	Projects     []Project
	PlannedHours []accrual.PlannedHours
	Timesheets   []accrual.Timesheet
	Invoices     []accrual.Invoice
	LoadedAt     time.Time
}

// Compute runs the engine over the dataset.
func (d *Dataset) Compute(asOf time.Time) []accrual.WorkOrderMetrics {
	return accrual.ComputeWorkOrderMetrics(d.WorkOrders, d.RateLines, d.PlannedHours, d.Timesheets, d.Invoices, asOf)
}

// WorkOrder looks up a work order by id.
func (d *Dataset) WorkOrder(id accrual.WorkOrderID) (accrual.WorkOrder, bool) {
	for _, wo := range d.WorkOrders {
		if wo.ID == id {
			return wo, true
		}
	}
	return accrual.WorkOrder{}, false
}

// Only narrows the dataset to a single work order. Invoices and rate lines
// are left whole; the engine attributes them itself.
func (d *Dataset) Only(id accrual.WorkOrderID) *Dataset {
	narrowed := *d
	narrowed.WorkOrders = nil
	if wo, ok := d.WorkOrder(id); ok {
		narrowed.WorkOrders = []accrual.WorkOrder{wo}
	}
	return &narrowed
}

// =============================================================================
// LOADER
// =============================================================================

type Loader struct {
	Source Source
	now    func() time.Time
}

func New(source Source) *Loader {
	return &Loader{Source: source, now: time.Now}
}

// Load fetches one sector's collections in parallel and joins projects onto
// hours records.
func (l *Loader) Load(ctx context.Context, sectorID string) (*Dataset, error) {
	if sectorID == "" {
		return nil, ErrSectorRequired
	}

	ds := &Dataset{SectorID: sectorID}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		ds.WorkOrders, err = l.Source.ListWorkOrders(gctx, sectorID)
		return wrap("work orders", err)
	})
	g.Go(func() (err error) {
		ds.RateLines, err = l.Source.ListRateLines(gctx, sectorID)
		return wrap("rate lines", err)
	})
	g.Go(func() (err error) {
		ds.Projects, err = l.Source.ListProjects(gctx, sectorID)
		return wrap("projects", err)
	})
	g.Go(func() (err error) {
		ds.PlannedHours, err = l.Source.ListPlannedHours(gctx, sectorID)
		return wrap("planned hours", err)
	})
	g.Go(func() (err error) {
		ds.Timesheets, err = l.Source.ListTimesheets(gctx, sectorID)
		return wrap("timesheets", err)
	})
	g.Go(func() (err error) {
		ds.Invoices, err = l.Source.ListInvoices(gctx, sectorID)
		return wrap("invoices", err)
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	ds.PlannedHours, ds.Timesheets = LinkWorkOrders(ds.Projects, ds.PlannedHours, ds.Timesheets)
	ds.LoadedAt = l.now()
	return ds, nil
}

// LinkWorkOrders returns copies of the hours records with WorkOrderID set
// from their project. Records on unknown projects get an empty WorkOrderID.
func LinkWorkOrders(projects []Project, planned []accrual.PlannedHours, actuals []accrual.Timesheet) ([]accrual.PlannedHours, []accrual.Timesheet) {
	link := make(map[accrual.ProjectID]accrual.WorkOrderID, len(projects))
	for _, p := range projects {
		link[p.ID] = p.WorkOrderID
	}

	linkedPlanned := make([]accrual.PlannedHours, len(planned))
	for i, p := range planned {
		p.WorkOrderID = link[p.ProjectID]
		linkedPlanned[i] = p
	}
	linkedActuals := make([]accrual.Timesheet, len(actuals))
	for i, ts := range actuals {
		ts.WorkOrderID = link[ts.ProjectID]
		linkedActuals[i] = ts
	}
	return linkedPlanned, linkedActuals
}

func wrap(what string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("failed to load %s: %w", what, err)
}
