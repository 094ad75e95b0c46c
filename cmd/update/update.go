// Package update implements the one-shot catalog update command.
package update

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gifttrack/gifttrack-go/internal/conf"
	"github.com/gifttrack/gifttrack-go/internal/datastore"
	"github.com/gifttrack/gifttrack-go/internal/giftsync"
	"github.com/gifttrack/gifttrack-go/internal/telegram"
)

// Command creates the update command: run one catalog update cycle and exit.
func Command(settings *conf.Settings) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Run one catalog update cycle",
		Long:  "Fetch every configured gift type once, update the catalog and exit.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(cmd.Context(), settings, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", viper.GetBool("sync.force"), "Update even if the catalog is fresh")
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		cobra.CheckErr(fmt.Errorf("error binding flags: %w", err))
	}

	return cmd
}

func runUpdate(ctx context.Context, settings *conf.Settings, force bool) error {
	ds := datastore.New(settings)
	if err := ds.Open(); err != nil {
		return fmt.Errorf("failed to open datastore: %w", err)
	}
	defer func() {
		if err := ds.Close(); err != nil {
			fmt.Printf("error closing datastore: %v\n", err)
		}
	}()

	client, err := telegram.NewClient(telegram.ConfigFromSettings(settings))
	if err != nil {
		return fmt.Errorf("failed to create source client: %w", err)
	}

	service := giftsync.NewService(settings, ds, client)
	defer service.Close()

	if !force {
		due, err := service.ShouldUpdate()
		if err != nil {
			return err
		}
		if !due {
			fmt.Println("Catalog is fresh, nothing to do (use --force to override)")
			return nil
		}
	}

	if ctx == nil {
		ctx = context.Background()
	}
	return service.UpdateAll(ctx, false)
}
