package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"giftshop/seed"
)

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the catalog into the store",
		Long: `Write categories, products and product details into the configured store.
Without --file the built-in six category catalog is used.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := loadCatalog(file)
			if err != nil {
				return err
			}

			st, err := openStore(cmd.Context(), rootOpts.cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			stats, err := seed.Apply(cmd.Context(), st, cat)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d categories and %d products\n", stats.Categories, stats.Products)
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "YAML catalog to load instead of the built-in one")
	return cmd
}

func loadCatalog(path string) (seed.Catalog, error) {
	if path == "" {
		return seed.Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return seed.Catalog{}, err
	}
	defer f.Close()
	return seed.Load(f)
}
