package sync

import (
	"fmt"
	"strings"

	"github.com/ajitpratap0/ticketsync/pkg/errors"
	"github.com/ajitpratap0/ticketsync/pkg/streams"
)

// DependencyError aggregates every child stream selected without its parent.
type DependencyError struct {
	Violations []string
}

func (e *DependencyError) Error() string {
	return strings.Join(e.Violations, " ")
}

// Unwrap classifies the violations as an ErrorTypeDependency error.
func (e *DependencyError) Unwrap() error {
	return errors.New(errors.ErrorTypeDependency, e.Error())
}

// ValidateDependencies checks that every selected child has its parent
// selected. It returns a *DependencyError listing all violations, or nil.
func ValidateDependencies(reg *streams.Registry, sel streams.Selection) error {
	var violations []string
	for _, parent := range reg.Parents() {
		if sel.Has(parent) {
			continue
		}
		for _, child := range reg.Children(parent) {
			if sel.Has(child) {
				violations = append(violations, fmt.Sprintf(
					"Unable to extract %s data. To receive %s data, you also need to select %s.",
					child, child, parent))
			}
		}
	}
	if len(violations) == 0 {
		return nil
	}
	return &DependencyError{Violations: violations}
}
