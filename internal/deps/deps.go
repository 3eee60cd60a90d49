// Package deps reports the availability of external tools the pipeline
// shells out to.
package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"casefile/internal/config"
)

// Requirement is one external tool the daemon invokes.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a requirement.
type Status struct {
	Requirement
	Available bool
	Detail    string
}

// Requirements derives the external tool set from the configuration. The
// detection engine is optional: without it artifacts still index and hunt,
// they just complete degraded.
func Requirements(cfg *config.Config) []Requirement {
	return []Requirement{
		{
			Name:        "detection engine",
			Command:     cfg.Detection.EngineBinary,
			Description: "scans indexed artifacts against the sigma rule catalog",
			Optional:    true,
		},
	}
}

// Check evaluates the requirements against PATH.
func Check(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		status := Status{Requirement: req}
		status.Command = strings.TrimSpace(req.Command)
		switch {
		case status.Command == "":
			status.Detail = "command not configured"
		default:
			if path, err := exec.LookPath(status.Command); err != nil {
				status.Detail = fmt.Sprintf("binary %q not found", status.Command)
			} else {
				status.Available = true
				status.Detail = path
			}
		}
		results = append(results, status)
	}
	return results
}

// MissingRequired returns the names of unavailable non-optional tools.
func MissingRequired(statuses []Status) []string {
	var missing []string
	for _, status := range statuses {
		if !status.Available && !status.Optional {
			missing = append(missing, status.Name)
		}
	}
	return missing
}
