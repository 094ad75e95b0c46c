package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gifttrack/gifttrack-go/cmd/monitor"
	"github.com/gifttrack/gifttrack-go/cmd/update"
	"github.com/gifttrack/gifttrack-go/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "gifttrack",
		Short: "GiftTrack CLI",
		Long:  "Track Telegram limited-edition gifts: catalog sync, ownership, history and sell-out predictions.",
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, settings); err != nil {
		cobra.CheckErr(err)
	}

	subcommands := []*cobra.Command{
		monitor.Command(settings),
		update.Command(settings),
	}
	rootCmd.AddCommand(subcommands...)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if err := cmd.Flags().Parse(args); err != nil {
			return err
		}
		return conf.ValidateSettings(settings)
	}

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().StringSliceVar(&settings.Sync.Types, "types", viper.GetStringSlice("sync.types"), "Gift type slugs to track")
	rootCmd.PersistentFlags().IntVar(&settings.Sync.Interval, "interval", viper.GetInt("sync.interval"), "Minimum minutes between catalog updates")
	rootCmd.PersistentFlags().IntVar(&settings.Sync.BatchSize, "batchsize", viper.GetInt("sync.batchsize"), "Units fetched concurrently per batch")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}
