package main

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/seantiz/hangar/internal/backend/local"
	"github.com/seantiz/hangar/internal/config"
	"github.com/seantiz/hangar/internal/launcher"
)

func newRunCmd() *cobra.Command {
	var (
		opts       launcher.Options
		async      bool
		launchFile string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Launch a project and optionally wait for it to finish",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if launchFile != "" {
				lf, err := config.LoadLaunchFile(launchFile)
				if err != nil {
					return err
				}
				applyLaunchFile(&opts, cmd, lf)
			}
			if opts.URI == "" {
				return errors.New("a project source is required: pass --uri or a launch file")
			}
			opts.Synchronous = !async

			d := buildDeps()

			// An operator interrupt must cancel the in-flight run before the
			// process exits.
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			run, err := d.launcher.Run(ctx, opts)
			if err != nil {
				if run != nil {
					term.Errorf("run %s: %v", run.ID(), err)
				}
				return err
			}

			if opts.Synchronous {
				term.Infof("run %s succeeded", run.ID())
			} else {
				term.Infof("run %s dispatched", run.ID())
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.URI, "uri", "", "project source (local path or URL)")
	cmd.Flags().StringVar(&opts.EntryPoint, "entry-point", "", "entry point within the project")
	cmd.Flags().StringVar(&opts.Version, "version", "", "source version (commit hash or branch)")
	cmd.Flags().StringToStringVar(&opts.Parameters, "param", nil, "entry point parameter (key=value, repeatable)")
	cmd.Flags().StringToStringVar(&opts.DockerArgs, "docker-arg", nil, "docker argument (key=value, repeatable)")
	cmd.Flags().StringVar(&opts.ExperimentName, "name", "", "experiment name for the run")
	cmd.Flags().StringVar(&opts.Resource, "resource", local.BackendName, "execution backend to dispatch to")
	cmd.Flags().StringVar(&opts.Entity, "entity", "", "target entity (defaults from settings)")
	cmd.Flags().StringVar(&opts.Project, "project", "", "target project (defaults from settings)")
	cmd.Flags().StringVar(&opts.DockerImage, "docker-image", "", "container image for the run")
	cmd.Flags().StringVar(&opts.StorageDir, "storage-dir", "", "directory for run artifacts")
	cmd.Flags().BoolVar(&async, "async", false, "return immediately instead of waiting for the run")
	cmd.Flags().StringVar(&launchFile, "launch-file", "", "YAML file with launch options (flags override)")

	return cmd
}

// applyLaunchFile fills opts from the launch file for every option the
// operator did not set explicitly on the command line.
func applyLaunchFile(opts *launcher.Options, cmd *cobra.Command, lf *config.LaunchFile) {
	if !cmd.Flags().Changed("uri") && lf.URI != "" {
		opts.URI = lf.URI
	}
	if !cmd.Flags().Changed("entry-point") && lf.EntryPoint != "" {
		opts.EntryPoint = lf.EntryPoint
	}
	if !cmd.Flags().Changed("version") && lf.Version != "" {
		opts.Version = lf.Version
	}
	if !cmd.Flags().Changed("param") && lf.Parameters != nil {
		opts.Parameters = lf.Parameters
	}
	if !cmd.Flags().Changed("docker-arg") && lf.DockerArgs != nil {
		opts.DockerArgs = lf.DockerArgs
	}
	if !cmd.Flags().Changed("name") && lf.ExperimentName != "" {
		opts.ExperimentName = lf.ExperimentName
	}
	if !cmd.Flags().Changed("resource") && lf.Resource != "" {
		opts.Resource = lf.Resource
	}
	if !cmd.Flags().Changed("entity") && lf.Entity != "" {
		opts.Entity = lf.Entity
	}
	if !cmd.Flags().Changed("project") && lf.Project != "" {
		opts.Project = lf.Project
	}
	if !cmd.Flags().Changed("docker-image") && lf.DockerImage != "" {
		opts.DockerImage = lf.DockerImage
	}
	if !cmd.Flags().Changed("storage-dir") && lf.StorageDir != "" {
		opts.StorageDir = lf.StorageDir
	}
	if lf.RunnerConfig != nil {
		opts.RunnerConfig = lf.RunnerConfig
	}
}

// exitError reports a fatal operator error and exits.
func exitError(format string, args ...any) {
	term.Errorf(format, args...)
	os.Exit(1)
}
