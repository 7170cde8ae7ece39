package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

type processAck struct {
	Message        string `json:"message"`
	VideoID        string `json:"video_id"`
	AlreadyRunning bool   `json:"already_running"`
}

func newProcessCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "process <video-id>",
		Short: "Queue a video for processing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			videoID := strings.TrimSpace(args[0])
			if videoID == "" {
				return fmt.Errorf("video id required")
			}

			var ack processAck
			if err := ctx.apiPost("/api/videos/"+videoID+"/process", nil, &ack); err != nil {
				return err
			}
			if ack.AlreadyRunning {
				fmt.Fprintf(cmd.OutOrStdout(), "Video %s is already processing.\n", ack.VideoID)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (video %s)\n", ack.Message, ack.VideoID)
			return nil
		},
	}
}
