// Package slotting ranks candidate putaway locations under weighted criteria.
// Pure and deterministic: for fixed input and weights the ranking is stable.
package slotting

import (
	"sort"

	"github.com/palletline-systems/palletline-stack/internal/inventory"
)

// TemperatureAmbient is universally acceptable: an AMBIENT location never
// fails the temperature filter.
const TemperatureAmbient = "AMBIENT"

// Weights configures the six subscore weights. They should sum to 1 but the
// scorer does not enforce it; relative magnitude is what matters.
type Weights struct {
	AbcVelocity float64
	Proximity   float64
	Capacity    float64
	Temperature float64
	Fefo        float64
	Hazard      float64
}

// DefaultWeights are the standard ranking weights.
func DefaultWeights() Weights {
	return Weights{
		AbcVelocity: 0.30,
		Proximity:   0.25,
		Capacity:    0.20,
		Temperature: 0.10,
		Fefo:        0.10,
		Hazard:      0.05,
	}
}

// Context describes the product being put away.
type Context struct {
	AbcClass            string
	RequiredTemperature string
	Hazmat              bool
	Quantity            float64
	PreferredZones      []string
	ExcludedLocations   []string
}

// Breakdown carries the per-criterion subscores for one location.
type Breakdown struct {
	AbcVelocity float64 `json:"abc_velocity"`
	Proximity   float64 `json:"proximity"`
	Capacity    float64 `json:"capacity"`
	Temperature float64 `json:"temperature"`
	Fefo        float64 `json:"fefo"`
	Hazard      float64 `json:"hazard"`
}

// Suggestion is one ranked location.
type Suggestion struct {
	Location  *inventory.Location
	Score     float64
	Breakdown Breakdown
}

// Scorer ranks locations. Construct once with the weights in force.
type Scorer struct {
	weights Weights
}

// NewScorer creates a scorer; zero-valued weights fall back to the defaults.
func NewScorer(weights Weights) *Scorer {
	if weights == (Weights{}) {
		weights = DefaultWeights()
	}
	return &Scorer{weights: weights}
}

// Rank filters and scores the candidates, best first. Ties are broken by
// lower pick sequence.
func (s *Scorer) Rank(candidates []*inventory.Location, ctx Context) []Suggestion {
	excluded := make(map[string]bool, len(ctx.ExcludedLocations))
	for _, id := range ctx.ExcludedLocations {
		excluded[id] = true
	}
	preferredZones := make(map[string]bool, len(ctx.PreferredZones))
	for _, z := range ctx.PreferredZones {
		preferredZones[z] = true
	}

	maxDistance := 0.0
	for _, loc := range candidates {
		if loc.DistanceFromDock > maxDistance {
			maxDistance = loc.DistanceFromDock
		}
	}
	maxFrequency := 0.0
	for _, loc := range candidates {
		if loc.PickFrequency > maxFrequency {
			maxFrequency = loc.PickFrequency
		}
	}

	var suggestions []Suggestion
	for _, loc := range candidates {
		if !s.eligible(loc, ctx, excluded, preferredZones) {
			continue
		}
		b := s.breakdown(loc, ctx, maxDistance, maxFrequency)
		suggestions = append(suggestions, Suggestion{
			Location:  loc,
			Score:     s.total(b),
			Breakdown: b,
		})
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		if suggestions[i].Score != suggestions[j].Score {
			return suggestions[i].Score > suggestions[j].Score
		}
		return suggestions[i].Location.PickSequence < suggestions[j].Location.PickSequence
	})
	return suggestions
}

func (s *Scorer) eligible(loc *inventory.Location, ctx Context, excluded, preferredZones map[string]bool) bool {
	if !loc.Active {
		return false
	}
	if excluded[loc.ID] {
		return false
	}
	if len(preferredZones) > 0 && !preferredZones[loc.Zone] {
		return false
	}
	if ctx.RequiredTemperature != "" &&
		loc.TemperatureZone != ctx.RequiredTemperature &&
		loc.TemperatureZone != TemperatureAmbient {
		return false
	}
	if ctx.Hazmat && !loc.HazmatCertified {
		return false
	}
	return true
}

func (s *Scorer) breakdown(loc *inventory.Location, ctx Context, maxDistance, maxFrequency float64) Breakdown {
	return Breakdown{
		AbcVelocity: abcVelocityScore(ctx.AbcClass, loc.PickFrequency, maxFrequency),
		Proximity:   proximityScore(loc.DistanceFromDock, maxDistance),
		Capacity:    capacityScore(loc.UtilizationPct),
		Temperature: temperatureScore(loc.TemperatureZone, ctx.RequiredTemperature),
		Fefo:        fefoScore(loc.Type),
		Hazard:      hazardScore(loc.HazmatCertified, ctx.Hazmat),
	}
}

func (s *Scorer) total(b Breakdown) float64 {
	return b.AbcVelocity*s.weights.AbcVelocity +
		b.Proximity*s.weights.Proximity +
		b.Capacity*s.weights.Capacity +
		b.Temperature*s.weights.Temperature +
		b.Fefo*s.weights.Fefo +
		b.Hazard*s.weights.Hazard
}

// abcVelocityScore matches fast movers to busy bays: class A favors
// high-pick-frequency locations, class C favors quiet ones, class B (or
// unclassified) is neutral.
func abcVelocityScore(abcClass string, frequency, maxFrequency float64) float64 {
	if maxFrequency <= 0 {
		return 0.5
	}
	normalized := frequency / maxFrequency
	switch abcClass {
	case "A":
		return normalized
	case "C":
		return 1 - normalized
	default:
		return 0.5
	}
}

func proximityScore(distance, maxDistance float64) float64 {
	if maxDistance <= 0 {
		return 1
	}
	return 1 - distance/maxDistance
}

func capacityScore(utilizationPct float64) float64 {
	score := 1 - utilizationPct/100
	if score < 0 {
		return 0
	}
	return score
}

func temperatureScore(zone, required string) float64 {
	switch {
	case required == "":
		return 0.5
	case zone == required:
		return 1
	default:
		return 0
	}
}

func fefoScore(locType inventory.LocationType) float64 {
	if locType == inventory.LocationPick || locType == inventory.LocationStaging {
		return 1
	}
	return 0.5
}

func hazardScore(certified, hazmat bool) float64 {
	if !hazmat {
		return 1
	}
	if certified {
		return 1
	}
	return 0
}
