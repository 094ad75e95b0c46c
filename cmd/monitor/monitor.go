// Package monitor implements the long-running monitor command.
package monitor

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gifttrack/gifttrack-go/internal/conf"
	"github.com/gifttrack/gifttrack-go/internal/monitor"
)

// Command creates the monitor command: continuous catalog sync plus the
// HTTP API and telemetry endpoints.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Run continuous gift tracking",
		Long:  "Poll the gift catalog on the configured interval and serve the REST API until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return monitor.Run(settings)
		},
	}

	if err := setupFlags(cmd, settings); err != nil {
		cobra.CheckErr(fmt.Errorf("error setting up monitor flags: %w", err))
	}

	return cmd
}

// setupFlags configures flags specific to the monitor command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().BoolVar(&settings.Realtime.API.Enabled, "api", viper.GetBool("realtime.api.enabled"), "Enable the REST API server")
	cmd.Flags().StringVar(&settings.Realtime.API.Listen, "listen", viper.GetString("realtime.api.listen"), "Listen address and port of the REST API")
	cmd.Flags().BoolVar(&settings.Realtime.Telemetry.Enabled, "telemetry", viper.GetBool("realtime.telemetry.enabled"), "Enable Prometheus telemetry endpoint")
	cmd.Flags().StringVar(&settings.Realtime.Telemetry.Listen, "telemetry-listen", viper.GetString("realtime.telemetry.listen"), "Listen address and port of telemetry endpoint")
	cmd.Flags().StringVar(&settings.Realtime.MQTT.Broker, "mqtt-broker", viper.GetString("realtime.mqtt.broker"), "MQTT broker URL for change events")

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}
