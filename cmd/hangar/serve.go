package main

import (
	"github.com/spf13/cobra"

	"github.com/seantiz/hangar/internal/api"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(_ *cobra.Command, _ []string) error {
			d := buildDeps()

			db, err := openStore(d.cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			srv := api.NewServer(d.cfg.ListenAddr, db, d.registry, d.launcher, d.logger)
			return srv.Run()
		},
	}
}
