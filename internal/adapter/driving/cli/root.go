// Package cli is the command-line driving adapter.
package cli

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ericfisherdev/vidrelay/internal/application"
	"github.com/ericfisherdev/vidrelay/internal/domain/port/driven"
)

// Services is everything a command may drive. The factory that builds it owns
// the underlying resources; Close releases them.
type Services struct {
	Bus        *application.EventBus
	Queue      *application.UploadQueue
	Relay      *application.RelayService
	Provenance *application.ProvenanceRecorder
	Tokens     *application.TokenManager
	API        *application.APIClient
	Settings   driven.SettingsStore
	ListenAddr string
	Close      func() error
}

// Factory builds Services. It is called once per command invocation so that
// help and flag errors never touch the database.
type Factory func(ctx context.Context) (*Services, error)

// NewRootCommand builds the vidrelay command tree.
func NewRootCommand(open Factory) *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "vidrelay",
		Short: "Re-upload videos to VK with queueing, retries and provenance",
		Long: `vidrelay uploads local files or videos fetched from another platform to VK.

Uploads run through a bounded queue with automatic retries. Every finished
upload records where it came from.

Environment Variables:
  VIDRELAY_DB_PATH        SQLite database path (default vidrelay.db)
  VIDRELAY_SECRET_KEY     64 hex chars; store the token encrypted in the database
  VIDRELAY_TOKEN_FILE     Token file used when no secret key is set
  VIDRELAY_CLIENT_ID      VK application ID used for authorization
  VIDRELAY_MAX_CONCURRENT Uploads in flight at once (default 2)
  VIDRELAY_LOG_LEVEL      debug, info, warn or error`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Disable progress bars")

	progress := func(cmd *cobra.Command) bool {
		return !quiet && isTerminal(cmd.OutOrStdout())
	}

	cmd.AddCommand(
		newServeCmd(open),
		newLoginCmd(open),
		newLogoutCmd(open),
		newUploadCmd(open, progress),
		newRelayCmd(open, progress),
		newGroupsCmd(open),
		newHistoryCmd(open),
		newDeleteCmd(open),
		newSettingsCmd(open),
	)
	return cmd
}

// withServices opens Services for the duration of fn.
func withServices(ctx context.Context, open Factory, fn func(svc *Services) error) (err error) {
	svc, err := open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if svc.Close == nil {
			return
		}
		if cerr := svc.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()
	return fn(svc)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
