package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"nator/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and override configuration",
	}

	configCmd.AddCommand(newConfigGetCommand(ctx))
	configCmd.AddCommand(newConfigSetCommand(ctx))
	configCmd.AddCommand(newConfigListCommand(ctx))
	configCmd.AddCommand(newConfigInitCommand(ctx))
	configCmd.AddCommand(newConfigValidateCommand(ctx))

	return configCmd
}

func newConfigGetCommand(ctx *commandContext) *cobra.Command {
	var reveal bool

	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Print the effective value of a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(func(rt *runtime) error {
				v, err := rt.settings.Lookup(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				value := v.Mask()
				if reveal {
					value = v.Value
				}
				fmt.Fprintln(cmd.OutOrStdout(), value)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&reveal, "reveal", false, "Print secret values unmasked")
	return cmd
}

func newConfigSetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Persist an override in the database",
		Long: "Persist an override in the database. A non-empty environment variable for\n" +
			"the same key still takes precedence.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(func(rt *runtime) error {
				c := cmd.Context()
				if err := rt.settings.Set(c, args[0], args[1]); err != nil {
					return err
				}
				v, err := rt.settings.Lookup(c, args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s = %s\n", v.Key, v.Mask())
				if v.Source == config.SourceEnv {
					key, _ := config.LookupKey(v.Key)
					fmt.Fprintf(out, "Note: %s is set in the environment and overrides the stored value\n", key.Env)
				}
				return nil
			})
		},
	}
}

func newConfigListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every key with its value and source",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(func(rt *runtime) error {
				values, err := rt.settings.All(cmd.Context())
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(values))
				for _, v := range values {
					key, _ := config.LookupKey(v.Key)
					rows = append(rows, []string{v.Key, dash(v.Mask()), string(v.Source), key.Env})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Key", "Value", "Source", "Env"}, rows, nil))
				return nil
			})
		},
	}
}

func newConfigInitCommand(ctx *commandContext) *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Create a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(targetPath)
			if target == "" {
				target = ctx.flagPath()
			}
			var err error
			if target == "" {
				target, err = config.DefaultConfigPath()
			} else {
				target, err = config.ExpandPath(target)
			}
			if err != nil {
				return fmt.Errorf("resolve config path: %w", err)
			}

			if !overwrite {
				if _, err := os.Stat(target); err == nil {
					return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
				} else if !os.IsNotExist(err) {
					return fmt.Errorf("check config path: %w", err)
				}
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("create config directory: %w", err)
			}
			if err := config.CreateSample(target); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Providers default to mock and publishing to dry mode; edit the file or use `nator config set`.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing configuration if present")
	return cmd
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "validate",
		Short:       "Validate the configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, exists, err := config.Load(ctx.flagPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("ensure directories: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config path: %s\n", path)
			if !exists {
				fmt.Fprintln(out, "Config file did not exist; defaults were used")
			}
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}
