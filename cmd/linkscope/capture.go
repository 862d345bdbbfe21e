package main

import (
	"github.com/alvmarrod/linkscope/internal/capture"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func (a *app) captureCmd() *cobra.Command {
	var depth int
	cmd := &cobra.Command{
		Use:   "capture <url>...",
		Short: "Fetch pages and store them as a WARC.gz file in the capture directory",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.CaptureDir == "" {
				return a.cfg.RequireArchiveDir()
			}
			if !cmd.Flags().Changed("depth") {
				depth = a.cfg.CaptureDepth
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			c := capture.New(capture.Options{
				Dir:             a.cfg.CaptureDir,
				Workers:         a.cfg.CaptureWorkers,
				RequestTimeout:  a.cfg.RequestTimeout(),
				UserAgent:       a.cfg.UserAgent,
				MaxDepth:        depth,
				MaxHostsPerRoot: a.cfg.CaptureMaxHostsPerRoot,
			})

			stats, err := c.Run(ctx, args)
			if stats.Path != "" {
				logrus.Infof("Capture written to %s", stats.Path)
			}
			return err
		},
	}
	cmd.Flags().IntVar(&depth, "depth", 1, "link depth to follow (1 = seeds only)")
	return cmd
}
