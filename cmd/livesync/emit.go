package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/aquaice/livesync/internal/auth"
	"github.com/aquaice/livesync/internal/connection"
	"github.com/aquaice/livesync/internal/events"
)

// NewEmitCommand creates the emit command.
func NewEmitCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "emit <event> [arg]",
		Short: "Send one outbound event",
		Long: `Connect, send one outbound event, and disconnect.

Events:
  join_room <room>
  leave_room <room>
  ping
  request_data_refresh <entity>

Example:
  livesync emit join_room orders
  livesync emit request_data_refresh orders`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ev, err := outboundFor(args[0], args[1:])
			if err != nil {
				return err
			}
			return runEmit(cmd, rootOpts, ev)
		},
	}
	return cmd
}

// outboundFor builds an outbound event from command arguments.
func outboundFor(name string, args []string) (events.Outbound, error) {
	arg := func() (string, error) {
		if len(args) != 1 || args[0] == "" {
			return "", fmt.Errorf("%s requires one argument", name)
		}
		return args[0], nil
	}

	switch name {
	case events.NameJoinRoom:
		room, err := arg()
		if err != nil {
			return events.Outbound{}, err
		}
		return events.JoinRoom(room), nil
	case events.NameLeaveRoom:
		room, err := arg()
		if err != nil {
			return events.Outbound{}, err
		}
		return events.LeaveRoom(room), nil
	case events.NamePing:
		if len(args) != 0 {
			return events.Outbound{}, fmt.Errorf("%s takes no argument", name)
		}
		return events.Ping(), nil
	case events.NameRequestDataRefresh:
		entity, err := arg()
		if err != nil {
			return events.Outbound{}, err
		}
		return events.RequestDataRefresh(entity), nil
	}
	return events.Outbound{}, fmt.Errorf("unknown outbound event %q", name)
}

func runEmit(cmd *cobra.Command, opts *RootOptions, ev events.Outbound) error {
	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return err
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg.Log, opts.Verbose)

	creds, err := auth.LoadCredentials(cfg.Auth.Token, cfg.Auth.TokenFile)
	if err != nil {
		return err
	}

	m := connection.NewManager(connection.ManagerConfig{
		ServerURL:      cfg.Server.URL,
		Path:           cfg.Server.Path,
		Reconnect:      false,
		ConnectTimeout: cfg.Reconnect.ConnectTimeout,
		WriteTimeout:   cfg.Transport.WriteTimeout,
		BufferSize:     cfg.Transport.BufferSize,
	}, logger)
	defer m.Close()

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, cfg.Reconnect.ConnectTimeout+5*time.Second)
	defer cancel()

	if err := m.Connect(ctx, creds); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	if err := m.Emit(ev); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "sent %s\n", ev.Name)
	return nil
}
