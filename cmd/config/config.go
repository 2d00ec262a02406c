package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tphakala/fragring/internal/conf"
)

// SkipInit marks commands that run without loading the configuration.
const SkipInit = "fragring/skip-init"

// Command creates the config command with its print and init subcommands.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:         "config",
		Short:       "Inspect or create the configuration file",
		Annotations: map[string]string{SkipInit: "true"},
	}
	cmd.AddCommand(printCommand(), initCommand())
	return cmd
}

func printCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "print",
		Short:       "Print the default configuration as YAML",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{SkipInit: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := conf.DefaultYAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func initCommand() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:         "init [path]",
		Short:       "Write the default configuration to a file",
		Long:        "Write the default configuration to path, or to config.yaml in the first default config directory.",
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{SkipInit: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := targetPath(args)
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("config file %s already exists, use --force to overwrite", path)
			}
			if err := conf.WriteDefault(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")
	return cmd
}

func targetPath(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	paths, err := conf.GetDefaultConfigPaths()
	if err != nil {
		return "", err
	}
	if len(paths) == 0 {
		return "", fmt.Errorf("no default config directory available")
	}
	return filepath.Join(paths[0], "config.yaml"), nil
}
