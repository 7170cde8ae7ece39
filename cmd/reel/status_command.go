package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

type daemonStatus struct {
	Running  bool           `json:"running"`
	PID      int            `json:"pid"`
	Database string         `json:"database"`
	Videos   map[string]int `json:"videos"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			var status daemonStatus
			if err := ctx.apiGet("/api/status", nil, &status); err != nil {
				for _, line := range renderSectionHeader("Daemon", colorize) {
					fmt.Fprintln(out, line)
				}
				fmt.Fprintln(out, renderStatusLine("Daemon", statusError, "not reachable", colorize))
				return err
			}

			for _, line := range renderSectionHeader("Daemon", colorize) {
				fmt.Fprintln(out, line)
			}
			fmt.Fprintln(out, renderStatusLine("Daemon", statusOK, fmt.Sprintf("running (pid %d)", status.PID), colorize))
			fmt.Fprintln(out, renderStatusLine("Database", statusInfo, status.Database, colorize))

			fmt.Fprintln(out)
			for _, line := range renderSectionHeader("Videos", colorize) {
				fmt.Fprintln(out, line)
			}
			if len(status.Videos) == 0 {
				fmt.Fprintln(out, renderStatusLine("Library", statusInfo, "empty", colorize))
				return nil
			}
			statuses := make([]string, 0, len(status.Videos))
			for name := range status.Videos {
				statuses = append(statuses, name)
			}
			sort.Strings(statuses)
			for _, name := range statuses {
				kind := statusInfo
				switch name {
				case "ready":
					kind = statusOK
				case "failed":
					kind = statusError
				case "processing":
					kind = statusWarn
				}
				fmt.Fprintln(out, renderStatusLine(name, kind, fmt.Sprintf("%d", status.Videos[name]), colorize))
			}
			return nil
		},
	}
}
