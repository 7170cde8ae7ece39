package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"reel/internal/progress"
)

type progressView struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
	Percent int    `json:"percent"`
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <video-id>",
		Short: "Show details for a single video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			videoID := strings.TrimSpace(args[0])
			if videoID == "" {
				return fmt.Errorf("video id required")
			}

			var vid videoView
			if err := ctx.apiGet("/api/videos/"+videoID, nil, &vid); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				encoded, err := json.MarshalIndent(vid, "", "  ")
				if err != nil {
					return fmt.Errorf("encode video: %w", err)
				}
				fmt.Fprintln(out, string(encoded))
				return nil
			}

			fmt.Fprintf(out, "ID:        %s\n", vid.ID)
			fmt.Fprintf(out, "Filename:  %s\n", vid.Filename)
			fmt.Fprintf(out, "Storage:   %s\n", vid.StoragePath)
			fmt.Fprintf(out, "Status:    %s\n", vid.Status)
			if vid.Status == "processing" {
				var current progressView
				if err := ctx.apiGet("/api/videos/"+videoID+"/progress/current", nil, &current); err == nil {
					if stage, ok := progress.ParseStage(current.Stage); ok {
						fmt.Fprintf(out, "Progress:  %s (%d%%) %s\n", stage, current.Percent, current.Message)
					}
				}
			}
			if vid.Title != "" {
				fmt.Fprintf(out, "Title:     %s\n", vid.Title)
			}
			if len(vid.Tags) > 0 {
				fmt.Fprintf(out, "Tags:      %s\n", strings.Join(vid.Tags, ", "))
			}
			if vid.Duration > 0 {
				fmt.Fprintf(out, "Length:    %s\n", formatDuration(vid.Duration))
			}
			fmt.Fprintf(out, "Created:   %s\n", vid.CreatedAt.Local().Format(time.RFC1123))
			if vid.ProcessedAt != nil {
				fmt.Fprintf(out, "Processed: %s\n", vid.ProcessedAt.Local().Format(time.RFC1123))
			}
			if vid.Summary != "" {
				fmt.Fprintf(out, "\nSummary:\n%s\n", vid.Summary)
			}
			if vid.Transcript != "" {
				fmt.Fprintf(out, "\nTranscript:\n%s\n", vid.Transcript)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit the raw JSON record")
	return cmd
}
