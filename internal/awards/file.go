package awards

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/sheikh-saqib/service-hours-ledger/internal/models"
)

type tierFile struct {
	Tiers []tierRow `yaml:"tiers"`
}

type tierRow struct {
	ID        int64  `yaml:"id"`
	Name      string `yaml:"name"`
	Color     string `yaml:"color"`
	Threshold string `yaml:"threshold"`
}

// Parse decodes award tiers from YAML.
func Parse(data []byte) ([]models.AwardTier, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("awards: tier file is empty")
	}
	var file tierFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("awards: decode tiers: %w", err)
	}

	seen := make(map[int64]struct{}, len(file.Tiers))
	tiers := make([]models.AwardTier, 0, len(file.Tiers))
	for i, row := range file.Tiers {
		name := strings.TrimSpace(row.Name)
		if name == "" {
			return nil, fmt.Errorf("awards: tier %d: name is required", i+1)
		}
		if row.ID <= 0 {
			return nil, fmt.Errorf("awards: tier %q: id must be positive", name)
		}
		if _, dup := seen[row.ID]; dup {
			return nil, fmt.Errorf("awards: tier %q: duplicate id %d", name, row.ID)
		}
		seen[row.ID] = struct{}{}
		threshold, err := decimal.NewFromString(strings.TrimSpace(row.Threshold))
		if err != nil {
			return nil, fmt.Errorf("awards: tier %q: threshold: %w", name, err)
		}
		if threshold.IsNegative() {
			return nil, fmt.Errorf("awards: tier %q: threshold must not be negative", name)
		}
		tiers = append(tiers, models.AwardTier{
			ID:        row.ID,
			Name:      name,
			Color:     strings.TrimSpace(row.Color),
			Threshold: threshold,
		})
	}
	return tiers, nil
}

// LoadFile reads award tiers from a YAML file.
func LoadFile(path string) ([]models.AwardTier, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("awards: read %s: %w", path, err)
	}
	tiers, err := Parse(content)
	if err != nil {
		return nil, fmt.Errorf("awards: %s: %w", path, err)
	}
	return tiers, nil
}
