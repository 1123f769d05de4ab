package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nerrad567/airlink/internal/appliance"
	"github.com/nerrad567/airlink/internal/infrastructure/config"
	"github.com/nerrad567/airlink/internal/infrastructure/logging"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// configEnvVar overrides the default configuration path when --config is not set.
const configEnvVar = "AIRLINK_CONFIG"

// newRootCmd builds the command tree. A fresh tree per call keeps flag state
// out of package globals, which lets tests execute commands repeatedly.
func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "airlink",
		Short: "Appliance connection core",
		Long: `airlink maintains a connection to one air-treatment appliance.

It prefers the appliance's own broker on the local network and falls back to
the vendor cloud broker when allowed by the connection policy. State, faults
and environmental readings are exposed over HTTP, a WebSocket event stream,
Prometheus metrics and, optionally, InfluxDB and a SQLite event journal.

Credentials are best supplied through AIRLINK_LOCAL_CREDENTIAL,
AIRLINK_CLOUD_CREDENTIAL and AIRLINK_API_JWT_SECRET rather than the config
file.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"Path to the YAML config file (default $"+configEnvVar+" or "+defaultConfigPath+")")

	resolve := func() string { return resolveConfigPath(configPath) }

	root.AddCommand(
		newRunCmd(resolve),
		newSendCmd(resolve),
		newTokenCmd(resolve),
		newVersionCmd(),
	)
	return root
}

// resolveConfigPath returns the flag value, then AIRLINK_CONFIG, then the default.
func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if path := os.Getenv(configEnvVar); path != "" {
		return path
	}
	return defaultConfigPath
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "airlink %s\ncommit: %s\nbuilt:  %s\n", version, commit, date)
		},
	}
}

// newDevice builds the appliance facade from configuration.
//
// Parameters:
//   - cfg: Loaded configuration
//   - log: Logger passed to the device
//   - observer: Metrics sink; nil disables metrics
//
// Returns:
//   - *appliance.Device: Disconnected device
//   - error: If the profile is unusable
func newDevice(cfg *config.Config, log *logging.Logger, observer appliance.Observer) (*appliance.Device, error) {
	profile, err := appliance.ProfileFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("building appliance profile: %w", err)
	}

	dev, err := appliance.New(appliance.Options{
		Profile:           profile,
		QoS:               byte(cfg.MQTT.QoS),
		KeepAlive:         cfg.MQTT.KeepAlive,
		ReconnectBackoff:  cfg.Connection.ReconnectBackoff,
		ReclaimInterval:   cfg.Connection.ReclaimInterval,
		ConnectTimeout:    cfg.Connection.ConnectTimeout,
		SuperviseInterval: cfg.Connection.SuperviseInterval,
		Logger:            log.With("component", "appliance", "serial", profile.Serial),
		Observer:          observer,
	})
	if err != nil {
		return nil, fmt.Errorf("creating appliance: %w", err)
	}
	return dev, nil
}
