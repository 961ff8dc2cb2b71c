package cmds

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

func newConfigCommand(f *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the settings after file, environment and flags are applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if p := viper.ConfigFileUsed(); p != "" {
				_, _ = fmt.Fprintf(out, "# %s\n", p)
			}
			data, err := yaml.Marshal(f.cfg)
			if err != nil {
				return errors.Wrap(err, "encode config")
			}
			_, err = out.Write(data)
			return err
		},
	})
	return cmd
}
