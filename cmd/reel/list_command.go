package main

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type videoView struct {
	ID          string     `json:"id"`
	Filename    string     `json:"filename"`
	StoragePath string     `json:"storage_path"`
	Title       string     `json:"title"`
	Tags        []string   `json:"tags"`
	Transcript  string     `json:"transcript"`
	Summary     string     `json:"summary"`
	Duration    float64    `json:"duration"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at"`
}

type videoListView struct {
	Videos []videoView `json:"videos"`
	Total  int         `json:"total"`
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var statusFlag string
	var tagFlag string
	var limitFlag int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List journal videos",
		RunE: func(cmd *cobra.Command, args []string) error {
			query := url.Values{}
			if trimmed := strings.TrimSpace(statusFlag); trimmed != "" {
				query.Set("status", trimmed)
			}
			if trimmed := strings.TrimSpace(tagFlag); trimmed != "" {
				query.Set("tag", trimmed)
			}
			if limitFlag > 0 {
				query.Set("limit", strconv.Itoa(limitFlag))
			}

			var listed videoListView
			if err := ctx.apiGet("/api/videos", query, &listed); err != nil {
				return err
			}
			if listed.Total == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No videos found.")
				return nil
			}

			rows := make([][]string, 0, len(listed.Videos))
			for _, vid := range listed.Videos {
				title := vid.Title
				if title == "" {
					title = vid.Filename
				}
				rows = append(rows, []string{
					vid.ID,
					title,
					vid.Status,
					strings.Join(vid.Tags, ", "),
					formatDuration(vid.Duration),
					vid.CreatedAt.Local().Format("2006-01-02 15:04"),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "TITLE", "STATUS", "TAGS", "LENGTH", "CREATED"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&statusFlag, "status", "", "Filter by status (pending, processing, ready, failed)")
	cmd.Flags().StringVar(&tagFlag, "tag", "", "Filter by tag")
	cmd.Flags().IntVar(&limitFlag, "limit", 0, "Maximum number of videos to return")
	return cmd
}

func formatDuration(seconds float64) string {
	if seconds <= 0 {
		return "-"
	}
	total := int(seconds + 0.5)
	minutes := total / 60
	remainder := total % 60
	return fmt.Sprintf("%d:%02d", minutes, remainder)
}
