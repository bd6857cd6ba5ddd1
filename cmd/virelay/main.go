// Command virelay inspects workspace projects and the containers behind them.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/robert-malhotra/virelay/internal/logging"
)

var (
	logLevel string
	logJSON  bool

	logger = logging.Nop()
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "virelay",
		Short:         "Inspect attribution analysis projects",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = logging.New(logging.Config{
				Level:   logging.ParseLevel(logLevel),
				JSON:    logJSON,
				Service: "virelay",
				Output:  cmd.ErrOrStderr(),
			})
			slog.SetDefault(logger)
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "minimum log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&logJSON, "log-json", false, "write JSON log records")

	root.AddCommand(newListCmd(), newInspectCmd(), newRenderCmd(), newWalkCmd(), newMkdemoCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "virelay:", err)
		os.Exit(1)
	}
}
