package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/seantiz/hangar/internal/agent"
)

func newAgentCmd() *cobra.Command {
	var queues []string

	cmd := &cobra.Command{
		Use:   "agent <entity/project>",
		Short: "Poll a run queue and dispatch requests until interrupted",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			// Malformed scope is a fatal configuration error: exit before any
			// queue poll happens.
			entity, projName, err := agent.ParseSpec(args[0])
			if err != nil {
				exitError("specify the agent scope in the form 'entity/project': %v", err)
			}

			d := buildDeps()

			db, err := openStore(d.cfg)
			if err != nil {
				exitError("open database: %v", err)
			}
			defer db.Close()

			a := agent.New(agent.Config{
				Entity:          entity,
				Project:         projName,
				Queues:          queues,
				MaxInFlight:     d.cfg.MaxInFlight,
				PollInterval:    d.cfg.PollInterval,
				MaxPollInterval: d.cfg.MaxPollInterval,
			}, db, db, d.launcher, d.logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				exitError("agent: %v", err)
			}
		},
	}

	cmd.Flags().StringSliceVar(&queues, "queue", nil, "restrict polling to the named queues (repeatable)")

	return cmd
}
