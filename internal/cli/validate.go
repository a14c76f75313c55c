package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/patchbay/internal/graph"
	"github.com/roach88/patchbay/internal/patch"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid       bool                    `json:"valid"`
	Patch       string                  `json:"patch"`
	Hash        string                  `json:"hash,omitempty"`
	Nodes       int                     `json:"nodes"`
	Connections int                     `json:"connections"`
	Errors      []patch.ValidationError `json:"errors,omitempty"`
	Cycles      []graph.CycleWarning    `json:"cycles,omitempty"`
	Order       [][]graph.NodeID        `json:"order,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <patch>",
		Short: "Check a patch without running it",
		Long: `Check a patch file: node kinds and configs, connection endpoints,
directions and duplicates. Every problem is reported, not just the first.

Feedback cycles are legal. Cycles broken by an integrator or delay are
listed for information; cycles of stateless nodes are reported as hazards
because part of the loop sees values one tick late.

Exit codes:
  0 - Patch is valid (hazards are warnings only)
  1 - Patch has errors
  2 - Patch could not be read`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)

	doc, err := loadPatch(f, path)
	if err != nil {
		return err
	}

	result := ValidationResult{
		Patch:       doc.Name,
		Nodes:       len(doc.Nodes),
		Connections: len(doc.Connections),
	}
	if errs := patch.Validate(doc); len(errs) > 0 {
		result.Errors = errs
		return outputValidationErrors(f, result)
	}

	g, err := patch.Build(doc)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build patch", err)
	}
	result.Valid = true
	result.Cycles = g.AnalyzeCycles()
	result.Order = g.EvaluationOrder().Ordered
	if result.Hash, err = patch.Hash(doc); err != nil {
		return WrapExitError(ExitCommandError, "failed to hash patch", err)
	}
	f.VerboseLog("patch %s hash %s", doc.Name, result.Hash)

	return outputValidateSuccess(f, result)
}

func outputValidateSuccess(f *OutputFormatter, result ValidationResult) error {
	if f.JSON() {
		return f.Success(result)
	}

	w := f.Writer
	fmt.Fprintf(w, "✓ Patch %s valid (%d nodes, %d connections)\n", result.Patch, result.Nodes, result.Connections)
	for _, c := range result.Cycles {
		mark := "i"
		if c.Level == graph.LevelHazard {
			mark = "!"
		}
		fmt.Fprintf(w, "  %s %s\n", mark, c.Message)
	}
	return nil
}

// outputValidationErrors prints every validation error and returns an
// ExitFailure error.
func outputValidationErrors(f *OutputFormatter, result ValidationResult) error {
	result.Valid = false
	if f.JSON() {
		first := result.Errors[0]
		if err := f.Encode(CLIResponse{
			Status: "error",
			Data:   result,
			Error:  &CLIError{Code: first.Code, Message: first.Message},
		}); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))
	}

	fmt.Fprintf(f.Writer, "✗ Patch %s invalid\n\n", result.Patch)
	for _, e := range result.Errors {
		fmt.Fprintf(f.Writer, "  %s %s: %s\n", e.Code, e.Field, e.Message)
	}
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))
}
