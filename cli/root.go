package cli

import (
	"github.com/spf13/cobra"

	"giftshop/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	EnvFile string

	cfg config.Config
}

// NewRootCommand creates the root command for the giftshop binary.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "giftshop",
		Short: "Gift storefront API",
		Long:  "Catalog, cart and order API for the gift storefront.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.EnvFile)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file to load before reading the environment")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))

	return cmd
}
