package recommend

import (
	"sort"
)

// TierThreshold is the minimum lifetime value for a tier.
type TierThreshold struct {
	Tier             LoyaltyTier
	MinLifetimeValue float64
}

// SegmentTable holds the business parameters used by Classify. It is
// loaded from configuration and treated as read-only.
type SegmentTable struct {
	// Tiers need not be sorted. Tiers missing from the table are never assigned.
	Tiers []TierThreshold
	// Categories maps each behavioral segment to the category tags that
	// signal it. A tag mapped to several segments counts toward each.
	Categories map[SegmentLabel][]string
}

// DefaultSegmentTable is used when no table file is configured.
func DefaultSegmentTable() SegmentTable {
	return SegmentTable{
		Tiers: []TierThreshold{
			{Tier: TierBronze, MinLifetimeValue: 0},
			{Tier: TierSilver, MinLifetimeValue: 500},
			{Tier: TierGold, MinLifetimeValue: 1500},
			{Tier: TierPlatinum, MinLifetimeValue: 3000},
			{Tier: TierDiamond, MinLifetimeValue: 6000},
		},
		Categories: map[SegmentLabel][]string{
			SegmentBodybuilder:     {"Pre-Entreno", "Creatina", "Aminoácidos", "BCAA"},
			SegmentWeightLoss:      {"Quemadores", "Termogénicos", "L-Carnitina", "CLA"},
			SegmentBulking:         {"Ganadores de Peso", "Proteínas", "Carbohidratos"},
			SegmentHealthConscious: {"Vitaminas", "Minerales", "Omega 3", "Salud"},
		},
	}
}

// Validate rejects tables Classify cannot apply.
func (t SegmentTable) Validate() error {
	seen := make(map[LoyaltyTier]bool, len(t.Tiers))
	for _, th := range t.Tiers {
		if th.Tier < TierBronze || th.Tier > TierDiamond {
			return invalidInput("unknown tier %d", th.Tier)
		}
		if seen[th.Tier] {
			return invalidInput("tier %s listed twice", th.Tier)
		}
		if th.MinLifetimeValue < 0 {
			return invalidInput("tier %s has negative threshold", th.Tier)
		}
		seen[th.Tier] = true
	}
	sorted := t.sortedTiers()
	for i := 1; i < len(sorted); i++ {
		if sorted[i].MinLifetimeValue < sorted[i-1].MinLifetimeValue {
			return invalidInput("tier %s threshold below %s", sorted[i].Tier, sorted[i-1].Tier)
		}
	}
	for label := range t.Categories {
		if !label.Valid() {
			return invalidInput("unknown segment %q", label)
		}
	}
	return nil
}

func (t SegmentTable) sortedTiers() []TierThreshold {
	tiers := append([]TierThreshold(nil), t.Tiers...)
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].Tier < tiers[j].Tier })
	return tiers
}

// CategoriesFor returns the tags configured for a segment.
func (t SegmentTable) CategoriesFor(label SegmentLabel) []string {
	return t.Categories[label]
}

// Classify derives the segment and loyalty tier of a customer. It is total
// and deterministic: an empty history yields casual/Bronze.
func Classify(metrics CustomerMetrics, table SegmentTable) Segment {
	return Segment{
		Label: classifyLabel(metrics.CategoryFrequency, table),
		Tier:  classifyTier(metrics.LifetimeValue, table),
	}
}

func classifyTier(ltv float64, table SegmentTable) LoyaltyTier {
	tier := TierBronze
	for _, th := range table.sortedTiers() {
		if ltv >= th.MinLifetimeValue && th.Tier > tier {
			tier = th.Tier
		}
	}
	return tier
}

func classifyLabel(freq map[string]int, table SegmentTable) SegmentLabel {
	if len(freq) == 0 {
		return SegmentCasual
	}

	best := SegmentCasual
	bestScore := 0
	for _, label := range SegmentLabels {
		score := 0
		for _, category := range table.Categories[label] {
			score += freq[category]
		}
		// strict > keeps the earlier label on ties
		if score > bestScore {
			best, bestScore = label, score
		}
	}
	return best
}
