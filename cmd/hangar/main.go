package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// term is the operator-facing logger. Service components log structured JSON
// via slog; the CLI talks to a human.
var term = logrus.New()

func main() {
	root := &cobra.Command{
		Use:           "hangar",
		Short:         "Launch projects onto pluggable execution backends",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newRunCmd())
	root.AddCommand(newAgentCmd())
	root.AddCommand(newServeCmd())
	root.AddCommand(newPushCmd())

	if err := root.Execute(); err != nil {
		term.Error(err)
		os.Exit(1)
	}
}
