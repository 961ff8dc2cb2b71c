package cmds

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	clay "github.com/go-go-golems/clay/pkg"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/go-go-golems/lenin/pkg/config"
	"github.com/go-go-golems/lenin/pkg/tui"
)

func newTUICommand(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Full-screen chat",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// stderr belongs to the screen while the program runs
			if viper.GetString("log-file") == "" {
				logFile := filepath.Join(filepath.Dir(config.DefaultStorePath()), "lenin.log")
				if err := os.MkdirAll(filepath.Dir(logFile), 0o700); err != nil {
					return errors.Wrap(err, "create log directory")
				}
				viper.Set("log-file", logFile)
				viper.Set("log-format", "json")
				if err := clay.InitLogger(); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM)
			defer stop()

			a, err := f.newApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			ok, err := a.Start(ctx)
			if err != nil {
				return err
			}
			if !ok {
				return errors.Wrap(errNotAuthenticated, "run lenin login first")
			}
			return tui.Run(ctx, a)
		},
	}
}
