package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmcleod/bucketvault/sanitize"
)

var sanitizeCmd = &cobra.Command{
	Use:   "sanitize",
	Short: "Clean object paths and names the way the vault does before addressing storage",
}

var sanitizePathCmd = &cobra.Command{
	Use:   "path <path>...",
	Short: "Sanitize object paths and re-validate the result",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		for _, arg := range args {
			cleaned := sanitize.Path(arg)
			status := "ok"
			if cleaned == "" {
				status = "root"
			} else if err := sanitize.ValidateKey(trimContainer(cleaned)); err != nil {
				status = err.Error()
			}
			fmt.Fprintf(out, "%s\t%s\n", sanitize.Printable(cleaned), status)
		}
		return nil
	},
}

var sanitizeSegmentCmd = &cobra.Command{
	Use:   "segment <segment>...",
	Short: "Sanitize single path segments",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, arg := range args {
			fmt.Fprintln(cmd.OutOrStdout(), sanitize.Printable(sanitize.Segment(arg)))
		}
		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:       "validate <bucket|region|endpoint|key> <value>",
	Short:     "Check a value against the storage naming rules",
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{"bucket", "region", "endpoint", "key"},
	RunE: func(cmd *cobra.Command, args []string) error {
		var check func(string) error
		switch args[0] {
		case "bucket":
			check = sanitize.ValidateBucketName
		case "region":
			check = sanitize.ValidateRegion
		case "endpoint":
			check = sanitize.ValidateEndpoint
		case "key":
			check = sanitize.ValidateKey
		default:
			return fmt.Errorf("unknown kind %q", sanitize.Printable(args[0]))
		}
		if err := check(args[1]); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "valid")
		return nil
	},
}

func trimContainer(p string) string {
	return strings.TrimSuffix(p, sanitize.Separator)
}

func init() {
	sanitizeCmd.AddCommand(sanitizePathCmd, sanitizeSegmentCmd)
	rootCmd.AddCommand(sanitizeCmd, validateCmd)
}
