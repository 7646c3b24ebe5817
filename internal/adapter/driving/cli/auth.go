package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ericfisherdev/vidrelay/internal/domain/model"
)

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	errColor  = color.New(color.FgRed)
	dimColor  = color.New(color.Faint)
)

func newLoginCmd(open Factory) *cobra.Command {
	var (
		force    bool
		redirect string
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authorize vidrelay to upload videos on your behalf",
		Long: `Authorize vidrelay with VK. A browser opens at the consent page; after
approving access, paste the address of the blank page you are redirected to.

Use --redirect to hand over that address without the interactive prompt.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			return withServices(ctx, open, func(svc *Services) error {
				switch {
				case redirect != "":
					if err := svc.Tokens.CompleteAuthorization(ctx, redirect); err != nil {
						return fmt.Errorf("login: %w", err)
					}
				default:
					if force {
						if err := svc.Tokens.Logout(ctx); err != nil {
							return err
						}
					}
					if !svc.Tokens.EnsureValid(ctx) {
						return fmt.Errorf("login: %w", model.ErrAuthDeclined)
					}
				}

				user, err := svc.API.CurrentUser(ctx)
				if err != nil {
					return fmt.Errorf("login: verify token: %w", err)
				}
				cred, err := svc.Tokens.Credential(ctx)
				if err != nil {
					return err
				}

				okColor.Fprintf(out, "Logged in as %s %s (id %d)\n", user.FirstName, user.LastName, user.ID)
				printExpiry(out, cred)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Discard the stored token and authorize again")
	cmd.Flags().StringVar(&redirect, "redirect", "", "Redirect URL (or its fragment) from a completed authorization")
	return cmd
}

func newLogoutCmd(open Factory) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withServices(cmd.Context(), open, func(svc *Services) error {
				if err := svc.Tokens.Logout(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
				return nil
			})
		},
	}
}

func printExpiry(out io.Writer, cred *model.Credential) {
	switch {
	case cred == nil:
		return
	case !cred.HasExpiry():
		dimColor.Fprintln(out, "Token does not expire")
	case cred.Expired(time.Now()):
		warnColor.Fprintln(out, "Token has expired")
	default:
		dimColor.Fprintf(out, "Token expires %s\n", humanize.Time(cred.ExpiresAt()))
	}
}
