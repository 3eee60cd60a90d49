// Package rules loads the sigma rule catalog the detection engine runs. The
// engine consumes the rule files directly; this package parses them so the
// rest of the pipeline can resolve engine output back to rule identity.
package rules

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	sigma "github.com/bradleyjkemp/sigma-go"
)

// DetectionRule is one catalog entry. Collection is the rule's subdirectory
// under the rules root, used to group related rules in listings.
type DetectionRule struct {
	ID         string
	Title      string
	Collection string
	Level      string
	Path       string
	Enabled    bool
}

// Catalog is the loaded rule set, resolvable by title and by id.
type Catalog struct {
	rules   []*DetectionRule
	byTitle map[string]*DetectionRule
	byID    map[string]*DetectionRule
}

// Load walks the rules directory and parses every sigma rule file. Files
// that fail to parse are skipped with their paths collected, not fatal: one
// bad rule must not take down detection for a whole catalog.
func Load(rulesDir string) (*Catalog, []string, error) {
	catalog := &Catalog{
		byTitle: make(map[string]*DetectionRule),
		byID:    make(map[string]*DetectionRule),
	}
	var skipped []string

	err := filepath.WalkDir(rulesDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".yml" && ext != ".yaml" {
			return nil
		}

		contents, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read rule %s: %w", path, err)
		}
		parsed, err := sigma.ParseRule(contents)
		if err != nil {
			skipped = append(skipped, path)
			return nil
		}

		rule := &DetectionRule{
			ID:         parsed.ID,
			Title:      parsed.Title,
			Collection: collectionName(rulesDir, path),
			Level:      parsed.Level,
			Path:       path,
			Enabled:    true,
		}
		catalog.rules = append(catalog.rules, rule)
		if rule.Title != "" {
			catalog.byTitle[rule.Title] = rule
		}
		if rule.ID != "" {
			catalog.byID[rule.ID] = rule
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("walk rules directory: %w", err)
	}
	return catalog, skipped, nil
}

// Rules returns every loaded rule.
func (c *Catalog) Rules() []*DetectionRule {
	return c.rules
}

// Len returns the number of loaded rules.
func (c *Catalog) Len() int {
	return len(c.rules)
}

// ByTitle resolves engine output, which reports rule titles, to the rule.
func (c *Catalog) ByTitle(title string) (*DetectionRule, bool) {
	rule, ok := c.byTitle[title]
	return rule, ok
}

// ByID resolves a rule by its sigma id.
func (c *Catalog) ByID(id string) (*DetectionRule, bool) {
	rule, ok := c.byID[id]
	return rule, ok
}

func collectionName(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "default"
	}
	dir := filepath.Dir(rel)
	if dir == "." {
		return "default"
	}
	return strings.Split(filepath.ToSlash(dir), "/")[0]
}
