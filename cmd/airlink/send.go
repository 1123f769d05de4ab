package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nerrad567/airlink/internal/appliance"
	"github.com/nerrad567/airlink/internal/infrastructure/config"
	"github.com/nerrad567/airlink/internal/infrastructure/logging"
)

func newSendCmd(configPath func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "send <action> [value]",
		Short: "Connect once, perform one action and disconnect",
		Long: `Connect to the appliance using the configured policy, send a single
command and disconnect.

Actions: ` + strings.Join(appliance.Actions, ", ") + `

Examples:
  airlink send power on
  airlink send fan-speed 6
  airlink send fan-speed auto
  airlink send sleep-timer 90
  airlink send request-state`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath())
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			value := ""
			if len(args) == 2 {
				value = args[1]
			}
			if err := send(cmd.Context(), cfg, logging.New(cfg.Logging, version), args[0], value); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent %s\n", strings.TrimSpace(strings.Join(args, " ")))
			return nil
		},
	}
}

// send performs one action on a freshly connected device.
//
// Returns:
//   - error: appliance.ErrNotConnected if no transport could be reached, or
//     the error from Perform
func send(ctx context.Context, cfg *config.Config, log *logging.Logger, action, value string) error {
	dev, err := newDevice(cfg, log, nil)
	if err != nil {
		return err
	}

	if !dev.Connect(ctx) {
		return fmt.Errorf("connecting to appliance %s: %w", cfg.Device.Serial, appliance.ErrNotConnected)
	}
	defer dev.Disconnect()

	if err := dev.Perform(ctx, action, value); err != nil {
		return fmt.Errorf("performing %s: %w", action, err)
	}
	return nil
}
