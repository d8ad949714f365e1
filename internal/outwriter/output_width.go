package outwriter

import (
	"os"

	"github.com/protonlab/scantime/internal/contract"
	"github.com/protonlab/scantime/schema"
	"golang.org/x/term"
)

// getMaxTableNameWidth calculates the maximum width for beam names in table output
// based on terminal width and the columns of the view.
func getMaxTableNameWidth(cfg *contract.Config) int {
	var termWidth int

	// Check for absolute width override from flag/env
	if cfg.Width > 0 {
		termWidth = cfg.Width
	}

	if termWidth == 0 {
		detectedWidth, _, err := term.GetSize(int(os.Stdout.Fd()))
		if err != nil || detectedWidth <= 0 {
			termWidth = 80 // Conservative default for narrow terminals and CI
		} else {
			termWidth = detectedWidth
		}
	}

	// Reserve space for the numeric columns with table formatting
	var baseWidth int
	switch cfg.View {
	case schema.SegmentsView:
		baseWidth = 95
	case schema.LayersView:
		baseWidth = 110
	default:
		baseWidth = 75
	}

	available := termWidth - baseWidth
	if available < 8 {
		return 8
	}
	if available > 40 {
		return 40
	}
	return available
}
