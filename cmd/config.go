package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"seatwatch/internal/bootstrap/config"
	"seatwatch/internal/errs"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration helpers",
}

var configSchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON Schema of the config file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		schema, err := config.Schema()
		if err != nil {
			return errs.Wrap(err, "build config schema")
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(schema))
		return err
	},
}

func init() {
	configCmd.AddCommand(configSchemaCmd)
	rootCmd.AddCommand(configCmd)
}
