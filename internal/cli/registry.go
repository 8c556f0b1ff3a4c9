package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agusx1211/brood/internal/registry"
)

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Inspect or reset the agent registry",
}

var registryShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the registry file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openRegistry(cmd)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(store.Read())
	},
}

var registryClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every registry entry (logs are kept)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openRegistry(cmd)
		if err != nil {
			return err
		}
		old, err := store.Clear()
		if err != nil {
			return fmt.Errorf("clearing registry: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%sRemoved %d registry entr%s.%s\n",
			colorGreen, len(old), plural(len(old), "y", "ies"), colorReset)
		return nil
	},
}

func openRegistry(cmd *cobra.Command) (*registry.Store, error) {
	dirFlag, _ := cmd.Flags().GetString("dir")
	dir, err := workDir(dirFlag)
	if err != nil {
		return nil, err
	}
	s, err := loadSettings(dir)
	if err != nil {
		return nil, err
	}
	return registry.New(s.RegistryPath(dir)), nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func init() {
	registryCmd.PersistentFlags().String("dir", "", "Working directory (default: current)")
	registryCmd.AddCommand(registryShowCmd, registryClearCmd)
	rootCmd.AddCommand(registryCmd)
}
