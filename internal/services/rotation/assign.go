package rotation

import (
	"sort"
	"time"

	"MarketBoard/internal/domain/models"
)

type candidate struct {
	idx   int
	item  *models.RotationItem
	score float64
}

// assign picks fixed then spotlight items. Caller holds g.mu.
//
// Fixed slots take pinned items in catalog order; pinned items beyond the
// fixed capacity and unused fixed capacity both move to the spotlight. The
// spotlight is filled by forced signal symbols first, then by the lowest
// showCount/(weight*daypart) score, oldest lastShown, catalog order.
func (g *group) assign(now time.Time, hour int) []string {
	for sym, until := range g.signalUntil {
		if !now.Before(until) {
			delete(g.signalUntil, sym)
		}
	}
	// A signal that lapsed before the next tick no longer forces its symbol.
	for sym := range g.forced {
		if _, ok := g.signalUntil[sym]; !ok {
			delete(g.forced, sym)
		}
	}
	for _, it := range g.items {
		_, active := g.signalUntil[it.Symbol]
		it.SignalActive = active
	}

	var pinned, free []candidate
	for i, it := range g.items {
		c := candidate{idx: i, item: it}
		if it.Pinned {
			pinned = append(pinned, c)
			continue
		}
		c.score = float64(it.ShowCount) / (it.Weight * g.cfg.multiplier(it.Category, hour))
		free = append(free, c)
	}

	fixedN := min(len(pinned), g.cfg.FixedSlots)
	spotCap := g.cfg.SpotlightSlots + (g.cfg.FixedSlots - fixedN)

	var shown, forced []*models.RotationItem
	for _, c := range pinned[:fixedN] {
		shown = append(shown, c.item)
	}
	for _, c := range pinned[fixedN:] {
		if spotCap == 0 {
			break
		}
		shown = append(shown, c.item)
		spotCap--
	}

	// Forced candidates in priority order, then catalog order.
	var queued []candidate
	for _, c := range free {
		if p, ok := g.forced[c.item.Symbol]; ok {
			c.score = float64(-p)
			queued = append(queued, c)
		}
	}
	sort.SliceStable(queued, func(i, j int) bool { return queued[i].score < queued[j].score })
	taken := make(map[int]bool)
	for _, c := range queued {
		if spotCap == 0 {
			break
		}
		forced = append(forced, c.item)
		taken[c.idx] = true
		delete(g.forced, c.item.Symbol)
		spotCap--
	}

	sort.SliceStable(free, func(i, j int) bool {
		a, b := free[i], free[j]
		if a.score != b.score {
			return a.score < b.score
		}
		if !a.item.LastShownTimestamp.Equal(b.item.LastShownTimestamp) {
			return a.item.LastShownTimestamp.Before(b.item.LastShownTimestamp)
		}
		return a.idx < b.idx
	})
	var fair []*models.RotationItem
	for _, c := range free {
		if spotCap == 0 {
			break
		}
		if taken[c.idx] {
			continue
		}
		fair = append(fair, c.item)
		spotCap--
	}

	ids := make([]string, 0, len(shown)+len(forced)+len(fair))
	for _, it := range shown {
		it.ShowCount++
		it.LastShownTimestamp = now
		ids = append(ids, it.ID)
	}
	for _, it := range forced {
		// Out-of-turn display does not count against fairness.
		it.LastShownTimestamp = now
		ids = append(ids, it.ID)
	}
	for _, it := range fair {
		it.ShowCount++
		it.LastShownTimestamp = now
		ids = append(ids, it.ID)
	}

	g.rebase()
	return ids
}

// rebase shifts counts down once every non-pinned item has been shown
// FairnessWindow times, keeping the comparison bounded to that horizon.
func (g *group) rebase() {
	if g.cfg.FairnessWindow <= 0 {
		return
	}
	lo := -1
	for _, it := range g.items {
		if it.Pinned {
			continue
		}
		if lo < 0 || it.ShowCount < lo {
			lo = it.ShowCount
		}
	}
	if lo < g.cfg.FairnessWindow {
		return
	}
	for _, it := range g.items {
		it.ShowCount = max(0, it.ShowCount-lo)
	}
}
