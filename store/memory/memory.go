// Package memory provides an in-memory loader.Source.
package memory

import (
	"context"
	"sync"

	"github.com/warp/burn-engine/accrual"
	"github.com/warp/burn-engine/loader"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu      sync.RWMutex
	sectors map[string]*sector

	// Err, when set, is returned by every List call.
	Err error
}

type sector struct {
	workOrders []accrual.WorkOrder
	rateLines  []accrual.RateLine
	projects   []loader.Project
	planned    []accrual.PlannedHours
	timesheets []accrual.Timesheet
	invoices   []accrual.Invoice
}

var _ loader.Source = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{sectors: make(map[string]*sector)}
}

func (m *Memory) sectorLocked(id string) *sector {
	s, ok := m.sectors[id]
	if !ok {
		s = &sector{}
		m.sectors[id] = s
	}
	return s
}

// Add appends records of any supported type to a sector.
func (m *Memory) Add(sectorID string, records ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.sectorLocked(sectorID)
	for _, r := range records {
		switch v := r.(type) {
		case accrual.WorkOrder:
			s.workOrders = append(s.workOrders, v)
		case accrual.RateLine:
			s.rateLines = append(s.rateLines, v)
		case loader.Project:
			s.projects = append(s.projects, v)
		case accrual.PlannedHours:
			s.planned = append(s.planned, v)
		case accrual.Timesheet:
			s.timesheets = append(s.timesheets, v)
		case accrual.Invoice:
			s.invoices = append(s.invoices, v)
		default:
			panic("memory: unsupported record type")
		}
	}
}

func (m *Memory) ListWorkOrders(_ context.Context, sectorID string) ([]accrual.WorkOrder, error) {
	return list(m, sectorID, func(s *sector) []accrual.WorkOrder { return s.workOrders })
}

func (m *Memory) ListRateLines(_ context.Context, sectorID string) ([]accrual.RateLine, error) {
	return list(m, sectorID, func(s *sector) []accrual.RateLine { return s.rateLines })
}

func (m *Memory) ListProjects(_ context.Context, sectorID string) ([]loader.Project, error) {
	return list(m, sectorID, func(s *sector) []loader.Project { return s.projects })
}

func (m *Memory) ListPlannedHours(_ context.Context, sectorID string) ([]accrual.PlannedHours, error) {
	return list(m, sectorID, func(s *sector) []accrual.PlannedHours { return s.planned })
}

func (m *Memory) ListTimesheets(_ context.Context, sectorID string) ([]accrual.Timesheet, error) {
	return list(m, sectorID, func(s *sector) []accrual.Timesheet { return s.timesheets })
}

func (m *Memory) ListInvoices(_ context.Context, sectorID string) ([]accrual.Invoice, error) {
	return list(m, sectorID, func(s *sector) []accrual.Invoice { return s.invoices })
}

// list copies a sector's slice so callers never share backing arrays.
func list[T any](m *Memory, sectorID string, pick func(*sector) []T) ([]T, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return nil, m.Err
	}
	s, ok := m.sectors[sectorID]
	if !ok {
		return nil, nil
	}
	src := pick(s)
	result := make([]T, len(src))
	copy(result, src)
	return result, nil
}
