// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package reconcile merges the aggregated sources of one cycle into the
// process-level and area-level views.
//
// # Branches
//
// The merge branch is chosen from which of Rodeo, Workforce and LPI have
// rows. Process joins onto the process view whenever it is present and
// LPI(Hist) contributes historical_cph (null when absent).
//
//	missing            branch
//	none               BranchFull
//	Workforce, LPI     BranchDemandOnly
//	Workforce          BranchNoWorkforce
//	Rodeo              BranchNoDemand
//	anything else      BranchInsufficient
//
// A branch whose joins fail degrades along
// Full -> NoWorkforce -> DemandOnly -> Insufficient. The caller always gets
// a fully shaped MergedView.
package reconcile

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/z-Vaughan/PickAssist/services/pickassist/aggregate"
	"github.com/z-Vaughan/PickAssist/services/pickassist/sources"
	"github.com/z-Vaughan/PickAssist/services/pickassist/table"
)

// ErrJoin is the table join failure a branch degrades on.
var ErrJoin = table.ErrJoin

// cpt_level values.
const (
	CPTLevelRodeo = "See Rodeo[cpt_summary]"
	CPTLevelNone  = "No Rodeo"
)

var (
	processKeys = []string{"process_path"}
	areaKeys    = []string{"process_path", "pick_area"}
)

// =============================================================================
// Inputs and MissingSet
// =============================================================================

// Inputs holds the aggregated sources of one cycle. A nil field is an
// absent source.
type Inputs struct {
	Workforce *aggregate.WorkforceResult
	Process   *aggregate.ProcessResult
	LPI       *aggregate.LPIResult
	LPIHist   *aggregate.LPIHistResult
	Rodeo     *aggregate.RodeoResult
}

// MissingSet is the set of sources not tagged sources.Present.
type MissingSet map[string]struct{}

// Missing computes the MissingSet over Workforce, Rodeo, LPI and Process
// from each result's State tag. LPI(Hist) is optional and never counted.
func Missing(in Inputs) MissingSet {
	m := MissingSet{}
	mark := func(name string, present bool) {
		if !present {
			m[name] = struct{}{}
		}
	}
	mark(sources.Workforce, in.Workforce != nil && in.Workforce.State == sources.Present)
	mark(sources.Rodeo, in.Rodeo != nil && in.Rodeo.State == sources.Present)
	mark(sources.LPI, in.LPI != nil && in.LPI.State == sources.Present)
	mark(sources.Process, in.Process != nil && in.Process.State == sources.Present)
	return m
}

// NewMissingSet builds a set from names.
func NewMissingSet(names ...string) MissingSet {
	m := make(MissingSet, len(names))
	for _, n := range names {
		m[n] = struct{}{}
	}
	return m
}

// Has reports whether name is missing.
func (m MissingSet) Has(name string) bool {
	_, ok := m[name]
	return ok
}

// Names returns the missing sources sorted.
func (m MissingSet) Names() []string {
	out := make([]string, 0, len(m))
	for n := range m {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (m MissingSet) String() string { return "[" + strings.Join(m.Names(), ", ") + "]" }

// MarshalJSON encodes the set as a sorted array.
func (m MissingSet) MarshalJSON() ([]byte, error) { return json.Marshal(m.Names()) }

// =============================================================================
// Branches
// =============================================================================

// Branch is a merge strategy.
type Branch int

const (
	BranchInsufficient Branch = iota
	BranchFull
	BranchDemandOnly
	BranchNoWorkforce
	BranchNoDemand
)

var branchNames = map[Branch]string{
	BranchInsufficient: "insufficient",
	BranchFull:         "full",
	BranchDemandOnly:   "demand_only",
	BranchNoWorkforce:  "no_workforce",
	BranchNoDemand:     "no_demand",
}

func (b Branch) String() string {
	if s, ok := branchNames[b]; ok {
		return s
	}
	return fmt.Sprintf("branch(%d)", int(b))
}

// MarshalText encodes the branch name.
func (b Branch) MarshalText() ([]byte, error) { return []byte(b.String()), nil }

// SelectBranch picks the branch for a MissingSet. Only Rodeo, Workforce and
// LPI take part; Process never changes the branch.
func SelectBranch(m MissingSet) Branch {
	rodeo, wf, lpi := m.Has(sources.Rodeo), m.Has(sources.Workforce), m.Has(sources.LPI)
	switch {
	case !rodeo && !wf && !lpi:
		return BranchFull
	case !rodeo && wf && lpi:
		return BranchDemandOnly
	case !rodeo && wf && !lpi:
		return BranchNoWorkforce
	case rodeo && !wf && !lpi:
		return BranchNoDemand
	default:
		return BranchInsufficient
	}
}

// fallback is the next smaller branch tried after a failed merge.
func (b Branch) fallback() Branch {
	switch b {
	case BranchFull:
		return BranchNoWorkforce
	case BranchNoWorkforce:
		return BranchDemandOnly
	default:
		return BranchInsufficient
	}
}

// =============================================================================
// Merge
// =============================================================================

// MergedView is combined_data. Every field is always set.
type MergedView struct {
	CPTLevel     string       `json:"cpt_level"`
	ProcessLevel *table.Table `json:"process_level"`
	AreaLevel    *table.Table `json:"area_level"`
}

// Result is the outcome of Merge.
type Result struct {
	View    MergedView
	Missing MissingSet

	// Selected is the branch chosen from Missing; Branch is the one that
	// produced View after any degradation.
	Selected Branch
	Branch   Branch

	// Errors are the failures that caused degradation, in order.
	Errors []error
}

// Degraded reports whether a smaller branch than selected produced the view.
func (r Result) Degraded() bool { return r.Branch != r.Selected }

// Merge reconciles one cycle. elapsedHours is the shift's elapsed time and
// feeds projected_miss. Merge never fails; join errors and panics degrade
// to a smaller branch.
func Merge(in Inputs, elapsedHours float64) Result {
	missing := Missing(in)
	selected := SelectBranch(missing)
	res := Result{Missing: missing, Selected: selected}

	for b := selected; ; b = b.fallback() {
		view, err := in.run(b, elapsedHours, missing)
		if err == nil {
			res.View = view
			res.Branch = b
			return res
		}
		res.Errors = append(res.Errors, fmt.Errorf("%s merge: %w", b, err))
		if b == BranchInsufficient {
			// Unreachable: the insufficient branch only builds empty tables.
			res.View = insufficient()
			res.Branch = b
			return res
		}
	}
}

// run executes one branch, converting a panic into an ErrJoin error.
func (in Inputs) run(b Branch, elapsed float64, missing MissingSet) (view MergedView, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrJoin, r)
		}
	}()
	switch b {
	case BranchFull:
		return in.full(elapsed, missing)
	case BranchDemandOnly:
		return in.demandOnly(missing)
	case BranchNoWorkforce:
		return in.noWorkforce(elapsed, missing)
	case BranchNoDemand:
		return in.noDemand(missing)
	default:
		return insufficient(), nil
	}
}

func (in Inputs) full(elapsed float64, missing MissingSet) (MergedView, error) {
	process, err := in.withProcess(withDerived(
		start(in.Rodeo.CPTProcessSummary).
			join(in.Workforce.ProcessSummary, processKeys...).
			join(in.LPI.ProcessSummary, processKeys...).
			join(in.historical(processKeys), processKeys...),
		elapsed), missing).result()
	if err != nil {
		return MergedView{}, err
	}
	area, err := start(in.Rodeo.CPTProcessAreaSummary).
		join(in.Workforce.ProcessAreaSummary, areaKeys...).
		join(in.LPI.ProcessAreaSummary, areaKeys...).
		join(in.historical(areaKeys), areaKeys...).
		result()
	if err != nil {
		return MergedView{}, err
	}
	return MergedView{CPTLevel: CPTLevelRodeo, ProcessLevel: process, AreaLevel: area}, nil
}

func (in Inputs) demandOnly(missing MissingSet) (MergedView, error) {
	process, err := in.withProcess(start(in.Rodeo.CPTProcessSummary).
		constant("avg_cph", nil).
		constant("historical_cph", nil).
		constant("total_pickers", 0.0).
		constant("active_pickers", 0.0).
		constant("cases_picked", 0.0).
		constant("total_hours", 0.0).
		constant("projected_miss", false).
		constant("PRA", 0.0).
		constant("TUR", 0.0), missing).result()
	if err != nil {
		return MergedView{}, err
	}
	area, err := start(in.Rodeo.CPTProcessAreaSummary).
		constant("avg_cph", nil).
		constant("historical_cph", nil).
		constant("area_hc", 0.0).
		constant("area_active_hc", 0.0).
		constant("PRA", 0.0).
		constant("TUR", 0.0).
		result()
	if err != nil {
		return MergedView{}, err
	}
	return MergedView{CPTLevel: CPTLevelRodeo, ProcessLevel: process, AreaLevel: area}, nil
}

func (in Inputs) noWorkforce(elapsed float64, missing MissingSet) (MergedView, error) {
	process, err := in.withProcess(withDerived(
		start(in.Rodeo.CPTProcessSummary).
			join(in.LPI.ProcessSummary, processKeys...).
			join(in.historical(processKeys), processKeys...).
			constant("total_pickers", 0.0).
			constant("active_pickers", 0.0),
		elapsed), missing).result()
	if err != nil {
		return MergedView{}, err
	}
	area, err := start(in.Rodeo.CPTProcessAreaSummary).
		join(in.LPI.ProcessAreaSummary, areaKeys...).
		join(in.historical(areaKeys), areaKeys...).
		constant("area_hc", 0.0).
		constant("area_active_hc", 0.0).
		result()
	if err != nil {
		return MergedView{}, err
	}
	return MergedView{CPTLevel: CPTLevelRodeo, ProcessLevel: process, AreaLevel: area}, nil
}

func (in Inputs) noDemand(missing MissingSet) (MergedView, error) {
	process, err := in.withProcess(start(in.Workforce.ProcessSummary).
		join(in.LPI.ProcessSummary, processKeys...), missing).result()
	if err != nil {
		return MergedView{}, err
	}
	area, err := start(in.Workforce.ProcessAreaSummary).
		join(in.LPI.ProcessAreaSummary, areaKeys...).
		result()
	if err != nil {
		return MergedView{}, err
	}
	return MergedView{CPTLevel: CPTLevelNone, ProcessLevel: process, AreaLevel: area}, nil
}

func insufficient() MergedView {
	return MergedView{CPTLevel: CPTLevelNone, ProcessLevel: table.New(), AreaLevel: table.New()}
}

// withProcess joins the Process table when it has rows.
func (in Inputs) withProcess(c *chain, missing MissingSet) *chain {
	if missing.Has(sources.Process) {
		return c
	}
	return c.join(in.Process.Full, processKeys...)
}

// historical returns the LPI(Hist) rate at the given key level as
// historical_cph. An absent or unusable feed gives an empty table, so the
// join fills nulls.
func (in Inputs) historical(keys []string) *table.Table {
	cols := append(append([]string{}, keys...), "historical_cph")
	if in.LPIHist == nil {
		return table.New(cols...)
	}
	src := in.LPIHist.ProcessSummaryHist
	if len(keys) > 1 {
		src = in.LPIHist.ProcessAreaSummaryHist
	}
	if src == nil {
		return table.New(cols...)
	}
	sel, err := src.Select(append(append([]string{}, keys...), "avg_cph")...)
	if err != nil {
		return table.New(cols...)
	}
	return sel.Rename("avg_cph", "historical_cph")
}

// =============================================================================
// Join chain
// =============================================================================

// chain threads a table through a sequence of steps, stopping at the first
// error.
type chain struct {
	t   *table.Table
	err error
}

func start(t *table.Table) *chain {
	if t == nil {
		return &chain{err: fmt.Errorf("%w: nil base table", ErrJoin)}
	}
	return &chain{t: t}
}

func (c *chain) join(right *table.Table, keys ...string) *chain {
	if c.err != nil {
		return c
	}
	c.t, c.err = table.LeftJoin(c.t, right, keys...)
	return c
}

func (c *chain) with(name string, fn func(table.Row) any) *chain {
	if c.err != nil {
		return c
	}
	c.t = c.t.WithColumn(name, fn)
	return c
}

func (c *chain) constant(name string, v any) *chain {
	if c.err != nil {
		return c
	}
	c.t = c.t.WithConstant(name, v)
	return c
}

func (c *chain) result() (*table.Table, error) {
	return c.t, c.err
}
