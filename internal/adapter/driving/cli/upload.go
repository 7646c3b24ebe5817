package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ericfisherdev/vidrelay/internal/application"
	"github.com/ericfisherdev/vidrelay/internal/domain/model"
)

// idlePollInterval is how often a foreground command checks whether its
// uploads have settled.
const idlePollInterval = 100 * time.Millisecond

func newUploadCmd(open Factory, progress func(*cobra.Command) bool) *cobra.Command {
	var spec model.TaskSpec

	cmd := &cobra.Command{
		Use:   "upload <file>...",
		Short: "Upload local video files",
		Long: `Upload one or more local files and wait until each has finished.

Without --title each file is titled after its name. --title is only accepted
with a single file.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if spec.Title != "" && len(args) > 1 {
				return fmt.Errorf("--title needs exactly one file, got %d", len(args))
			}
			out := cmd.OutOrStdout()

			return withServices(cmd.Context(), open, func(svc *Services) error {
				return runForeground(cmd.Context(), svc, newProgressBoard(out, progress(cmd)), func() error {
					for _, path := range args {
						s := spec
						s.FilePath = path
						if s.Title == "" {
							s.Title = titleFromPath(path)
						}
						if info, err := os.Stat(path); err == nil {
							dimColor.Fprintf(out, "%s (%s)\n", path, humanize.Bytes(uint64(info.Size())))
						}
						if _, err := svc.Queue.Enqueue(s); err != nil {
							return err
						}
					}
					return nil
				})
			})
		},
	}
	cmd.Flags().StringVarP(&spec.Title, "title", "t", "", "Video title")
	cmd.Flags().StringVarP(&spec.Description, "description", "d", "", "Video description")
	cmd.Flags().Int64VarP(&spec.GroupID, "group", "g", 0, "Community ID to upload into (0 uploads to your page)")
	cmd.Flags().BoolVar(&spec.Private, "private", false, "Make the video visible only to you")
	cmd.Flags().StringVar(&spec.SourceURL, "source-url", "", "Original location, appended to the description")
	return cmd
}

func newRelayCmd(open Factory, progress func(*cobra.Command) bool) *cobra.Command {
	var opts application.RelayOptions

	cmd := &cobra.Command{
		Use:   "relay <url>...",
		Short: "Download videos from another platform and upload them",
		Long: `Download each video with yt-dlp and upload it with its original title and
description. The source URL is kept in the description and in the history.

A failed download skips that URL; the remaining ones are still relayed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Title != "" && len(args) > 1 {
				return fmt.Errorf("--title needs exactly one url, got %d", len(args))
			}
			out := cmd.OutOrStdout()
			ctx := cmd.Context()

			return withServices(ctx, open, func(svc *Services) error {
				var skipped int
				err := runForeground(ctx, svc, newProgressBoard(out, progress(cmd)), func() error {
					for _, u := range args {
						dimColor.Fprintf(out, "downloading %s\n", u)
						if _, err := svc.Relay.Relay(ctx, u, opts); err != nil {
							if ctx.Err() != nil {
								return ctx.Err()
							}
							skipped++
							errColor.Fprintf(out, "skipped   %s: %v\n", u, err)
						}
					}
					return nil
				})
				if err == nil && skipped > 0 {
					err = fmt.Errorf("%d of %d relays could not be downloaded", skipped, len(args))
				}
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&opts.Title, "title", "t", "", "Override the source title")
	cmd.Flags().Int64VarP(&opts.GroupID, "group", "g", 0, "Community ID to upload into (0 uses the default_group_id setting)")
	cmd.Flags().BoolVar(&opts.Private, "private", false, "Make the video visible only to you")
	cmd.Flags().StringVarP(&opts.Format, "format", "f", "", "yt-dlp format selector (defaults to the format setting)")
	return cmd
}

// runForeground runs the event dispatcher, lets enqueue add tasks, then waits
// for the queue to settle. It returns an error if any task failed for good.
func runForeground(ctx context.Context, svc *Services, board *progressBoard, enqueue func() error) error {
	board.Attach(svc.Bus)

	busCtx, stopBus := context.WithCancel(context.WithoutCancel(ctx))
	var g errgroup.Group
	g.Go(func() error {
		svc.Bus.Run(busCtx)
		return nil
	})

	err := enqueue()
	if err == nil {
		err = waitSettled(ctx, svc.Queue)
	}

	svc.Queue.Shutdown()
	svc.Bus.WaitIdle()
	stopBus()
	_ = g.Wait()

	completed, failed := board.finish()
	if err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d uploads failed", failed, completed+failed)
	}
	return nil
}

func waitSettled(ctx context.Context, queue *application.UploadQueue) error {
	ticker := time.NewTicker(idlePollInterval)
	defer ticker.Stop()

	for !queue.Idle() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

func titleFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
