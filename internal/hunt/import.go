package hunt

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"casefile/internal/artifact"
	"casefile/internal/services"
)

// indicatorFile is the analyst-facing YAML layout for indicator imports.
type indicatorFile struct {
	CaseID     string           `yaml:"case_id"`
	Indicators []indicatorEntry `yaml:"indicators"`
}

type indicatorEntry struct {
	ID       string `yaml:"id"`
	Type     string `yaml:"type"`
	Value    string `yaml:"value"`
	Strategy string `yaml:"strategy"`
	Disabled bool   `yaml:"disabled"`
}

// LoadIndicatorFile parses an indicator YAML file into validated indicator
// definitions. Entries without an id get a generated one; entries with an
// unknown type or empty value fail the whole import so a typo never silently
// drops an IOC.
func LoadIndicatorFile(path, caseID string) ([]*artifact.Indicator, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read indicator file: %w", err)
	}

	var file indicatorFile
	if err := yaml.Unmarshal(contents, &file); err != nil {
		return nil, services.Wrap(services.ErrValidation, "hunt", "parse indicator file", path, err)
	}
	if caseID == "" {
		caseID = file.CaseID
	}
	if caseID == "" {
		return nil, services.Wrap(services.ErrValidation, "hunt", "parse indicator file",
			"case id missing from both flag and file", nil)
	}

	indicators := make([]*artifact.Indicator, 0, len(file.Indicators))
	for i, entry := range file.Indicators {
		indType, ok := artifact.ParseIndicatorType(entry.Type)
		if !ok {
			return nil, services.Wrap(services.ErrValidation, "hunt", "parse indicator file",
				fmt.Sprintf("entry %d has unknown type %q", i+1, entry.Type), nil)
		}
		value := strings.TrimSpace(entry.Value)
		if value == "" {
			return nil, services.Wrap(services.ErrValidation, "hunt", "parse indicator file",
				fmt.Sprintf("entry %d has empty value", i+1), nil)
		}

		ind := &artifact.Indicator{
			ID:      entry.ID,
			CaseID:  caseID,
			Type:    indType,
			Value:   value,
			Enabled: !entry.Disabled,
		}
		if ind.ID == "" {
			ind.ID = uuid.NewString()
		}
		if entry.Strategy != "" {
			ind.Strategy = artifact.MatchStrategy(strings.ToLower(strings.TrimSpace(entry.Strategy)))
			switch ind.Strategy {
			case artifact.MatchExact, artifact.MatchNormalized, artifact.MatchPhrase, artifact.MatchTermSet:
			default:
				return nil, services.Wrap(services.ErrValidation, "hunt", "parse indicator file",
					fmt.Sprintf("entry %d has unknown strategy %q", i+1, entry.Strategy), nil)
			}
		} else {
			ind.Strategy = artifact.DefaultStrategy(indType)
		}
		indicators = append(indicators, ind)
	}
	return indicators, nil
}
