package cmd

import (
	"runtime"
	"slices"
	"strings"

	"github.com/protonlab/scantime/schema"
	"github.com/spf13/cobra"
)

// supportedEncodings lists the spot encodings this build can decode.
func supportedEncodings() string {
	names := make([]string, 0, len(schema.ValidSpotEncodings))
	for enc := range schema.ValidSpotEncodings {
		names = append(names, string(enc))
	}
	slices.Sort(names)
	return strings.Join(names, ", ")
}

// versionCmd shows the verbose version for diagnostic purposes.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of scantime.",
	Long: `Display version information including build details.

Shows:
- Release version
- Git commit hash
- Build timestamp
- Go runtime version
- Supported spot encodings

Useful for:
- Debugging compatibility issues
- Verifying correct binary installation
- Reporting bugs with version details`,
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Printf("scantime CLI\n")
		cmd.Printf("  Version: %s\n", version)
		cmd.Printf("  Commit:  %s\n", commit)
		cmd.Printf("  Built:   %s\n", date)
		cmd.Printf("  Runtime: %s\n", runtime.Version())
		cmd.Printf("  Encodings: %s\n", supportedEncodings())
	},
}
