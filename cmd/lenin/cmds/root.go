package cmds

import (
	"context"
	"os"
	"path/filepath"

	clay "github.com/go-go-golems/clay/pkg"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/go-go-golems/lenin/pkg/app"
	"github.com/go-go-golems/lenin/pkg/config"
)

type rootFlags struct {
	cfg config.Config
}

func NewRootCommand() *cobra.Command {
	f := &rootFlags{}
	rootCmd := &cobra.Command{
		Use:           "lenin",
		Short:         "lenin is a terminal client for the chat and notification backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// reinitialize the logger because --log-level and co are parsed by now
			if err := clay.InitLogger(); err != nil {
				return err
			}
			return f.load(cmd)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.String("api-url", "", "backend base URL")
	pf.String("store", "", "session database file (\"memory\" keeps it in memory)")

	// registers --config and the --log-* flags and points viper at LENIN_* variables
	cobra.CheckErr(clay.InitViper(config.AppName, rootCmd))
	cobra.CheckErr(viper.BindPFlag("api_url", pf.Lookup("api-url")))
	cobra.CheckErr(viper.BindPFlag("store_path", pf.Lookup("store")))

	rootCmd.AddCommand(
		newLoginCommand(f),
		newLogoutCommand(f),
		newRegisterCommand(f),
		newCheckCommand(f),
		newWhoamiCommand(f),
		newChatCommand(f),
		newNoticesCommand(f),
		newTUICommand(f),
		newConfigCommand(f),
	)
	return rootCmd
}

func (f *rootFlags) load(cmd *cobra.Command) error {
	v := viper.GetViper()
	path := ""
	if fl := cmd.Flags().Lookup("config"); fl != nil {
		path = fl.Value.String()
	}
	if path == "" && v.ConfigFileUsed() == "" {
		if p := config.DefaultPath(); p != "" {
			if _, err := os.Stat(p); err == nil {
				path = p
			}
		}
	}
	if path != "" && path != v.ConfigFileUsed() {
		if err := config.ReadFile(v, path); err != nil {
			return err
		}
	}

	cfg, err := config.FromViper(v)
	if err != nil {
		return err
	}
	switch cfg.StorePath {
	case "":
		cfg.StorePath = config.DefaultStorePath()
	case "memory":
		cfg.StorePath = ""
	}
	if cfg.StorePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.StorePath), 0o700); err != nil {
			return errors.Wrap(err, "create session store directory")
		}
	}
	log.Debug().Str("component", "cli").Str("config", v.ConfigFileUsed()).Msg("configuration loaded")
	f.cfg = cfg
	return nil
}

func (f *rootFlags) newApp(ctx context.Context) (*app.App, error) {
	return app.New(ctx, f.cfg)
}
