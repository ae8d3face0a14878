// Package decompose turns free-text specifications into wave-ordered
// execution plans and validates their structure.
package decompose

import (
	"context"
	"fmt"
	"strings"

	"github.com/waverunner-ai/waverunner/pkg/models"
)

// Decomposer produces an execution plan from a specification. The
// returned decomposition satisfies the wave-partition invariants; any
// structural problem surfaces as an *Error.
type Decomposer interface {
	Decompose(ctx context.Context, specText string) (*models.Decomposition, error)
}

// Error reports an invalid decomposition with human-readable findings.
type Error struct {
	// Messages lists the validation failures.
	Messages []string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if len(e.Messages) == 0 {
		return "invalid decomposition"
	}
	return fmt.Sprintf("invalid decomposition: %s", strings.Join(e.Messages, "; "))
}

// Func adapts a function to the Decomposer interface.
type Func func(ctx context.Context, specText string) (*models.Decomposition, error)

// Decompose implements Decomposer.
func (f Func) Decompose(ctx context.Context, specText string) (*models.Decomposition, error) {
	return f(ctx, specText)
}
