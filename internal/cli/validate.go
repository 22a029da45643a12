package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gridapi/gridapi/internal/codec"
	"github.com/gridapi/gridapi/internal/schema"
)

// ValidationIssue is one schema problem with its error code.
type ValidationIssue struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Tables int               `json:"tables"`
	Errors []ValidationIssue `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <schema-dir>",
		Short: "Validate a schema directory without serving it",
		Long: `Validate CUE table declarations without starting the server.

Loads and compiles the schema, then derives the field codecs for every
table, so serve-time startup failures surface here first.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	result, err := schema.Load(dir)
	if err != nil {
		var loadErr *schema.LoadError
		if errors.As(err, &loadErr) {
			// E0xx codes are environment problems (missing directory, no
			// files, unloadable CUE); everything else is a schema defect.
			if strings.HasPrefix(loadErr.Code, "E0") {
				return outputValidateError(formatter, loadErr.Code, loadErr.Message)
			}
			issue := ValidationIssue{Message: loadErr.Message, Code: loadErr.Code}
			if loadErr.Pos.IsValid() {
				issue.Line = loadErr.Pos.Line()
			}
			return outputValidationErrors(formatter, []ValidationIssue{issue})
		}
		return outputValidateError(formatter, schema.ErrCodeGeneric, err.Error())
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", result.FileCount, dir)

	var issues []ValidationIssue
	reg := codec.NewRegistry()
	for _, spec := range result.Schema.Tables {
		formatter.VerboseLog("Deriving codecs for table: %s", spec.Name)
		if _, err := codec.DeriveFieldCodecs(spec.Fields, reg, codec.DeriveConfig{}); err != nil {
			issues = append(issues, ValidationIssue{
				Field:   "table." + spec.Name,
				Message: err.Error(),
				Code:    schema.ErrCodeNoCodec,
			})
		}
	}

	if len(issues) > 0 {
		return outputValidationErrors(formatter, issues)
	}
	return outputValidateSuccess(formatter, len(result.Schema.Tables))
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, tables int) error {
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Tables: tables})
	}

	fmt.Fprintf(formatter.Writer, "✓ schema valid (%d table(s))\n", tables)
	return nil
}

// outputValidateError outputs a single command-level error.
func outputValidateError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs schema validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []ValidationIssue) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: errs},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}

		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", err.Code, err.Message)
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
