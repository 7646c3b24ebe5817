package cli

import (
	"fmt"
	"slices"
	"sort"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/vidrelay/internal/domain/port/driven"
)

// settingKeys lists the keys the settings command accepts.
var settingKeys = []string{
	driven.SettingDefaultGroupID,
	driven.SettingMaxConcurrent,
	driven.SettingDownloadDir,
	driven.SettingSaveThumbnails,
	driven.SettingFormat,
}

func newSettingsCmd(open Factory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change stored preferences",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return withServices(ctx, open, func(svc *Services) error {
				all, err := svc.Settings.All(ctx)
				if err != nil {
					return fmt.Errorf("list settings: %w", err)
				}

				keys := make([]string, 0, len(all))
				for k := range all {
					keys = append(keys, k)
				}
				sort.Strings(keys)

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				for _, k := range keys {
					fmt.Fprintf(tw, "%s\t%s\n", k, all[k])
				}
				return tw.Flush()
			})
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:       "set <key> <value>",
		Short:     "Store a preference",
		Args:      cobra.ExactArgs(2),
		ValidArgs: settingKeys,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]
			if err := validateSetting(key, value); err != nil {
				return err
			}
			ctx := cmd.Context()
			return withServices(ctx, open, func(svc *Services) error {
				if err := svc.Settings.Set(ctx, key, value); err != nil {
					return fmt.Errorf("set %s: %w", key, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", key, value)
				return nil
			})
		},
	})

	return cmd
}

func validateSetting(key, value string) error {
	if !slices.Contains(settingKeys, key) {
		return fmt.Errorf("unknown setting %q (known: %v)", key, settingKeys)
	}

	switch key {
	case driven.SettingDefaultGroupID:
		if n, err := strconv.ParseInt(value, 10, 64); err != nil || n < 0 {
			return fmt.Errorf("%s must be a non-negative community ID, got %q", key, value)
		}
	case driven.SettingMaxConcurrent:
		if n, err := strconv.Atoi(value); err != nil || n <= 0 {
			return fmt.Errorf("%s must be a positive integer, got %q", key, value)
		}
	case driven.SettingSaveThumbnails:
		if _, err := strconv.ParseBool(value); err != nil {
			return fmt.Errorf("%s must be true or false, got %q", key, value)
		}
	}
	return nil
}
