package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"storefront/internal/recommend"
)

// segmentFile mirrors the YAML layout:
//
//	tiers:
//	  Bronze: 0
//	  Silver: 500
//	segments:
//	  bodybuilder: [Pre-Entreno, Creatina]
type segmentFile struct {
	Tiers    map[string]float64  `koanf:"tiers"`
	Segments map[string][]string `koanf:"segments"`
}

// LoadSegmentTable reads the loyalty thresholds and category mapping. An
// empty path returns recommend.DefaultSegmentTable. Sections missing from
// the file keep their defaults.
func LoadSegmentTable(path string) (recommend.SegmentTable, error) {
	table := recommend.DefaultSegmentTable()
	if strings.TrimSpace(path) == "" {
		return table, nil
	}

	// "::" keeps dotted category names intact as map keys
	k := koanf.New("::")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return recommend.SegmentTable{}, fmt.Errorf("load segment config %s: %w", path, err)
	}

	var raw segmentFile
	if err := k.UnmarshalWithConf("", &raw, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return recommend.SegmentTable{}, fmt.Errorf("decode segment config %s: %w", path, err)
	}

	if len(raw.Tiers) > 0 {
		table.Tiers = table.Tiers[:0:0]
		for name, minLTV := range raw.Tiers {
			tier, ok := recommend.ParseTier(name)
			if !ok {
				return recommend.SegmentTable{}, fmt.Errorf("segment config %s: unknown tier %q", path, name)
			}
			table.Tiers = append(table.Tiers, recommend.TierThreshold{Tier: tier, MinLifetimeValue: minLTV})
		}
	}

	if len(raw.Segments) > 0 {
		table.Categories = make(map[recommend.SegmentLabel][]string, len(raw.Segments))
		for name, categories := range raw.Segments {
			label := recommend.SegmentLabel(name)
			if !label.Valid() {
				return recommend.SegmentTable{}, fmt.Errorf("segment config %s: unknown segment %q", path, name)
			}
			table.Categories[label] = categories
		}
	}

	if err := table.Validate(); err != nil {
		return recommend.SegmentTable{}, fmt.Errorf("segment config %s: %w", path, err)
	}
	return table, nil
}
