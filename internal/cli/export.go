package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/patchbay/internal/patch"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Out string
	As  string // yaml | json; defaults to the --out extension, else yaml
}

// ExportResult describes a written export.
type ExportResult struct {
	Patch string `json:"patch"`
	Out   string `json:"out"`
	Hash  string `json:"hash"`
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export <patch>",
		Short: "Convert a patch to YAML or JSON",
		Long: `Load a patch in any supported format and write it as YAML or JSON
with explicit node and connection ids. Without --out the patch is written
to stdout.

Examples:
  patchbay export spring.cue --out spring.yaml
  patchbay export spring.cue --as json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "output file (.yaml, .yml or .json)")
	cmd.Flags().StringVar(&opts.As, "as", "", "output format when writing to stdout (yaml|json)")

	return cmd
}

func runExport(opts *ExportOptions, path string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	doc, err := loadPatch(f, path)
	if err != nil {
		return err
	}
	if errs := patch.Validate(doc); len(errs) > 0 {
		return outputValidationErrors(f, ValidationResult{Patch: doc.Name, Errors: errs})
	}
	hash, err := patch.Hash(doc)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to hash patch", err)
	}

	if opts.Out == "" {
		format := patch.FormatYAML
		if opts.As != "" {
			format = patch.Format(opts.As)
		}
		if format != patch.FormatYAML && format != patch.FormatJSON {
			return NewExitError(ExitCommandError, fmt.Sprintf("invalid --as %q: must be yaml or json", opts.As))
		}
		if err := patch.Encode(f.Writer, doc, format); err != nil {
			return WrapExitError(ExitCommandError, "failed to encode patch", err)
		}
		return nil
	}

	if opts.As != "" {
		if want, err := patch.FormatOf(opts.Out); err != nil || string(want) != opts.As {
			return NewExitError(ExitCommandError, fmt.Sprintf("--as %s does not match %s", opts.As, opts.Out))
		}
	}
	if err := patch.WriteFile(opts.Out, doc); err != nil {
		var loadErr *patch.LoadError
		if errors.As(err, &loadErr) {
			_ = f.Error(loadErr.Code, loadErr.Message, nil)
		}
		return WrapExitError(ExitCommandError, "failed to write patch", err)
	}

	result := ExportResult{Patch: doc.Name, Out: opts.Out, Hash: hash}
	if f.JSON() {
		return f.Success(result)
	}
	fmt.Fprintf(f.Writer, "✓ Wrote %s to %s (hash %s)\n", doc.Name, opts.Out, hash)
	return nil
}
