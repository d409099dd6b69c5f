// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package reconcile

import (
	"math"

	"github.com/z-Vaughan/PickAssist/services/pickassist/table"
)

// noRateHours is the time needed when there is no effective rate.
const noRateHours = 999.0

// ProjectedMiss reports whether the remaining work will not finish before
// its deadline at the current pace.
//
// # Description
//
// timeSpent is labor hours logged, timePassed is shift hours elapsed, so
// timeSpent/timePassed is the average headcount. At that headcount and
// currentRate per picker, workRemaining needs workRemaining/(hc*rate)
// hours.
//
// Missing or unusable inputs answer true, so the caller shows a warning:
//
//   - timePassed <= 0 or timeSpent <= 0: true.
//   - timeRemaining <= 0: true (past due).
//   - workRemaining <= 0: false (nothing left).
//   - any NaN or infinite input: true.
func ProjectedMiss(timeSpent, timePassed, timeRemaining, workRemaining, currentRate float64) (miss bool) {
	defer func() {
		if recover() != nil {
			miss = true
		}
	}()
	for _, v := range []float64{timeSpent, timePassed, timeRemaining, workRemaining, currentRate} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return true
		}
	}
	if timePassed <= 0 || timeSpent <= 0 {
		return true
	}
	if timeRemaining <= 0 {
		return true
	}
	if workRemaining <= 0 {
		return false
	}

	avgHC := timeSpent / timePassed
	effRate := 0.0
	if currentRate != 0 {
		effRate = avgHC * currentRate
	}
	needed := noRateHours
	if effRate > 0 {
		needed = workRemaining / effRate
	}
	return needed > timeRemaining
}

// PRA is the picker rate average: round(cases/hours * density, 2), or 0
// without hours.
func PRA(totalCases, totalHours, caseDensity float64) float64 {
	if totalHours <= 0 {
		return 0
	}
	return table.Round2(totalCases / totalHours * caseDensity)
}

// TUR is the target unit rate: round(pra/pickers, 2), or 0 without
// pickers.
func TUR(pra, totalPickers float64) float64 {
	if totalPickers <= 0 {
		return 0
	}
	return table.Round2(pra / totalPickers)
}

// num reads a cell, treating null as 0.
func num(r table.Row, col string) float64 {
	return table.NumberOr(r[col], 0)
}

// withDerived adds projected_miss, PRA and TUR to a process-level chain.
func withDerived(c *chain, elapsedHours float64) *chain {
	return c.
		with("projected_miss", func(r table.Row) any {
			return ProjectedMiss(num(r, "total_hours"), elapsedHours, num(r, "hours_remaining"),
				num(r, "total_cases"), num(r, "avg_cph"))
		}).
		with("PRA", func(r table.Row) any {
			return PRA(num(r, "total_cases"), num(r, "total_hours"), num(r, "case_density"))
		}).
		with("TUR", func(r table.Row) any {
			return TUR(num(r, "PRA"), num(r, "total_pickers"))
		})
}
