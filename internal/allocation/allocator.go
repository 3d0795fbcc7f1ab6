// Package allocation implements FEFO (first-expire-first-out) allocation:
// given a demand and a set of inventory sources, pick lots in earliest-expiry
// order honoring location preferences and lot filters. Pure; the caller
// supplies the clock.
package allocation

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/palletline-systems/palletline-stack/internal/inventory"
)

// SkipReason explains why a candidate source was not allocated from.
type SkipReason string

const (
	SkipNoAvailable    SkipReason = "NO_AVAILABLE"
	SkipLotNotPickable SkipReason = "LOT_NOT_PICKABLE"
	SkipLotExpiring    SkipReason = "LOT_EXPIRING"
	SkipLotExcluded    SkipReason = "LOT_EXCLUDED"
)

// Request describes one demand to allocate.
type Request struct {
	ProductID           string
	VariantID           string
	WarehouseID         string
	Quantity            decimal.Decimal
	PreferredLocations  []string
	ExcludedLots        []string
	MinDaysToExpiration int
}

// Source is a candidate to allocate from: a stock level paired with its
// optional lot and location.
type Source struct {
	Level    *inventory.StockLevel
	Lot      *inventory.Lot
	Location *inventory.Location
}

// Line is one allocated slice of the demand.
type Line struct {
	StockLevelID string
	LocationID   string
	LotID        string
	Quantity     decimal.Decimal
}

// Skipped records a source passed over and why.
type Skipped struct {
	StockLevelID string
	LotID        string
	Reason       SkipReason
}

// Result reports the allocation outcome. Partial results are valid;
// ShortfallQuantity is the unmet remainder.
type Result struct {
	Lines             []Line
	Skipped           []Skipped
	RequestedQuantity decimal.Decimal
	AllocatedQuantity decimal.Decimal
	ShortfallQuantity decimal.Decimal
	FullyAllocated    bool
}

// Allocate walks the sources in FEFO order and fills the demand. It is total:
// unsatisfiable demand yields a partial result, never an error.
func Allocate(req Request, sources []Source, now time.Time) Result {
	candidates := filter(req, sources)
	orderSources(req, candidates)

	result := Result{
		RequestedQuantity: req.Quantity,
		AllocatedQuantity: decimal.Zero,
	}
	excluded := make(map[string]bool, len(req.ExcludedLots))
	for _, id := range req.ExcludedLots {
		excluded[id] = true
	}

	remaining := req.Quantity
	for _, src := range candidates {
		if remaining.IsZero() || remaining.IsNegative() {
			break
		}
		if reason, skip := shouldSkip(req, src, excluded, now); skip {
			result.Skipped = append(result.Skipped, Skipped{
				StockLevelID: src.Level.ID,
				LotID:        src.Level.LotID,
				Reason:       reason,
			})
			continue
		}

		take := decimal.Min(remaining, src.Level.Available())
		result.Lines = append(result.Lines, Line{
			StockLevelID: src.Level.ID,
			LocationID:   src.Level.LocationID,
			LotID:        src.Level.LotID,
			Quantity:     take,
		})
		result.AllocatedQuantity = result.AllocatedQuantity.Add(take)
		remaining = remaining.Sub(take)
	}

	result.ShortfallQuantity = remaining
	result.FullyAllocated = remaining.IsZero()
	return result
}

// filter keeps sources matching the demand's product, warehouse and, when
// supplied, variant.
func filter(req Request, sources []Source) []Source {
	var out []Source
	for _, src := range sources {
		if src.Level == nil {
			continue
		}
		if src.Level.ProductID != req.ProductID {
			continue
		}
		if src.Level.WarehouseID != req.WarehouseID {
			continue
		}
		if req.VariantID != "" && src.Level.VariantID != req.VariantID {
			continue
		}
		out = append(out, src)
	}
	return out
}

// orderSources sorts in place: preferred locations first, then FEFO within
// each group (earliest expiry first, expiry beats no-expiry, FIFO on received
// date otherwise, lotless last), then location pick sequence.
func orderSources(req Request, sources []Source) {
	preferred := make(map[string]bool, len(req.PreferredLocations))
	for _, id := range req.PreferredLocations {
		preferred[id] = true
	}

	sort.SliceStable(sources, func(i, j int) bool {
		a, b := sources[i], sources[j]

		pa, pb := preferred[a.Level.LocationID], preferred[b.Level.LocationID]
		if pa != pb {
			return pa
		}

		if cmp := compareFEFO(a.Lot, b.Lot); cmp != 0 {
			return cmp < 0
		}

		return pickSequence(a) < pickSequence(b)
	})
}

// compareFEFO orders two optional lots: both with expiry by date, expiry
// before no-expiry, no-expiry lots by received date (FIFO), lotless sources
// after everything lot-tracked.
func compareFEFO(a, b *inventory.Lot) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}

	ae, be := a.ExpirationDate, b.ExpirationDate
	switch {
	case ae != nil && be != nil:
		if ae.Before(*be) {
			return -1
		}
		if be.Before(*ae) {
			return 1
		}
		return 0
	case ae != nil:
		return -1
	case be != nil:
		return 1
	}

	if a.ReceivedAt.Before(b.ReceivedAt) {
		return -1
	}
	if b.ReceivedAt.Before(a.ReceivedAt) {
		return 1
	}
	return 0
}

func pickSequence(src Source) int {
	if src.Location == nil {
		return 1 << 30
	}
	return src.Location.PickSequence
}

func shouldSkip(req Request, src Source, excluded map[string]bool, now time.Time) (SkipReason, bool) {
	if !src.Level.Available().IsPositive() {
		return SkipNoAvailable, true
	}
	if src.Lot != nil {
		if excluded[src.Lot.ID] {
			return SkipLotExcluded, true
		}
		if src.Lot.Status != inventory.LotAvailable && src.Lot.Status != inventory.LotReleased {
			return SkipLotNotPickable, true
		}
		if src.Lot.ExpirationDate != nil && src.Lot.DaysToExpiration(now) < req.MinDaysToExpiration {
			return SkipLotExpiring, true
		}
	}
	return "", false
}
