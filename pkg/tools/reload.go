package tools

import (
	"fmt"
	"strings"
)

// ConfigChange reports what a configuration reload changed.
type ConfigChange struct {
	Added    []string `json:"added"`
	Removed  []string `json:"removed"`
	Modified []string `json:"modified"`
}

func (c *ConfigChange) String() string {
	var lines []string
	if len(c.Added) > 0 {
		lines = append(lines, fmt.Sprintf("Added: %s", strings.Join(c.Added, ", ")))
	}
	if len(c.Removed) > 0 {
		lines = append(lines, fmt.Sprintf("Removed: %s", strings.Join(c.Removed, ", ")))
	}
	if len(c.Modified) > 0 {
		lines = append(lines, fmt.Sprintf("Modified: %s", strings.Join(c.Modified, ", ")))
	}
	if len(lines) == 0 {
		return "No changes detected"
	}
	return strings.Join(lines, "\n")
}

// ReloadConfig re-reads the configuration file and reports the difference.
func ReloadConfig(gw Gateway) (*ConfigChange, error) {
	result, err := gw.Reload()
	if err != nil {
		return nil, err
	}
	return &ConfigChange{
		Added:    result.Added,
		Removed:  result.Removed,
		Modified: result.Modified,
	}, nil
}
