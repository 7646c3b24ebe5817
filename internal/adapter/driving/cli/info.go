package cli

import (
	"fmt"
	"regexp"
	"strconv"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ericfisherdev/vidrelay/internal/domain/model"
)

func newGroupsCmd(open Factory) *cobra.Command {
	return &cobra.Command{
		Use:   "groups",
		Short: "List communities you can upload videos into",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return withServices(ctx, open, func(svc *Services) error {
				groups, err := svc.API.UploadableGroups(ctx)
				if err != nil {
					return fmt.Errorf("list groups: %w", err)
				}
				if len(groups) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No communities accept your uploads")
					return nil
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME")
				for _, g := range groups {
					fmt.Fprintf(tw, "%d\t%s\n", g.ID, g.Name)
				}
				return tw.Flush()
			})
		},
	}
}

func newHistoryCmd(open Factory) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List finished uploads, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit < 0 {
				return fmt.Errorf("--limit must not be negative, got %d", limit)
			}
			ctx := cmd.Context()
			return withServices(ctx, open, func(svc *Services) error {
				records, err := svc.Provenance.History(ctx, limit)
				if err != nil {
					return fmt.Errorf("list history: %w", err)
				}
				if len(records) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No uploads yet")
					return nil
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "WHEN\tTITLE\tURL\tSOURCE")
				for _, rec := range records {
					source := rec.SourceURL
					if source == "" {
						source = rec.FilePath
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", humanize.Time(rec.CompletedAt), rec.Title, rec.URL, source)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of uploads to show (0 shows all)")
	return cmd
}

// videoRef matches "<owner>_<video>", optionally prefixed by a video URL.
var videoRef = regexp.MustCompile(`(?:video)?(-?\d+)_(\d+)$`)

func newDeleteCmd(open Factory) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <video-url|owner_video>",
		Short: "Delete an uploaded video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ownerID, videoID, err := parseVideoRef(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			return withServices(ctx, open, func(svc *Services) error {
				if err := svc.API.DeleteVideo(ctx, ownerID, videoID); err != nil {
					return fmt.Errorf("delete %s: %w", args[0], err)
				}
				okColor.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", model.VideoURL(ownerID, videoID))
				return nil
			})
		},
	}
}

func parseVideoRef(ref string) (ownerID, videoID int64, err error) {
	m := videoRef.FindStringSubmatch(ref)
	if m == nil {
		return 0, 0, fmt.Errorf("%q is not a video URL or owner_video pair", ref)
	}
	ownerID, err = strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parse owner id: %w", err)
	}
	videoID, err = strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parse video id: %w", err)
	}
	return ownerID, videoID, nil
}

