package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/tether/internal/fateshare"
	"github.com/Paintersrp/tether/internal/metrics"
)

func newDetectCmd(ctx *context) *cobra.Command {
	return &cobra.Command{
		Use:   "detect",
		Short: "Report whether this host can tie worker lifetimes to the supervisor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDetect(cmd, fateshare.Default())
		},
	}
}

func runDetect(cmd *cobra.Command, d *fateshare.Detector) error {
	supported := d.Detect()
	mechanism := d.Mechanism()
	metrics.SetFateSharing(mechanism.String(), supported)

	status := "unsupported"
	if supported {
		status = "supported"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s\tmechanism=%s\n", status, mechanism)
	return nil
}
