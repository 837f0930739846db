package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/seantiz/hangar/internal/agent"
	"github.com/seantiz/hangar/internal/model"
	"github.com/seantiz/hangar/internal/store"
)

func newPushCmd() *cobra.Command {
	var (
		queue    string
		specPath string
	)

	cmd := &cobra.Command{
		Use:   "push <entity/project>",
		Short: "Enqueue a run request for an agent to pick up",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			entity, projName, err := agent.ParseSpec(args[0])
			if err != nil {
				exitError("specify the target in the form 'entity/project': %v", err)
			}

			payload, err := os.ReadFile(specPath)
			if err != nil {
				exitError("read run spec: %v", err)
			}
			var spec model.RunSpec
			if err := json.Unmarshal(payload, &spec); err != nil {
				exitError("run spec %q is not valid JSON: %v", specPath, err)
			}

			d := buildDeps()
			db, err := openStore(d.cfg)
			if err != nil {
				exitError("open database: %v", err)
			}
			defer db.Close()

			req := pushToQueue(cmd.Context(), db, queue, entity, projName, payload)
			if req == nil {
				os.Exit(1)
			}
			term.Infof("enqueued request %s on queue %q", req.ID, req.Queue)
		},
	}

	cmd.Flags().StringVar(&queue, "queue", model.DefaultQueue, "queue to push onto")
	cmd.Flags().StringVar(&specPath, "spec", "", "path to a JSON run spec")
	_ = cmd.MarkFlagRequired("spec")

	return cmd
}

// pushToQueue enqueues one run request. Enqueue failures stop here: they are
// logged and a nil result is returned instead of propagating.
func pushToQueue(ctx context.Context, s store.Store, queue, entity, project string, payload []byte) *model.RunRequest {
	req := &model.RunRequest{
		ID:        model.NewID(),
		Queue:     queue,
		Entity:    entity,
		Project:   project,
		Payload:   payload,
		State:     model.RequestPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.EnqueueRequest(ctx, req); err != nil {
		term.Errorf("push to queue %q failed: %v", queue, err)
		return nil
	}
	return req
}
