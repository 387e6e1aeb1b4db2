package main

import (
	"fmt"
	"io"
	"slices"
	"sort"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/musher-dev/ember/internal/config"
	clierrors "github.com/musher-dev/ember/internal/errors"
	"github.com/musher-dev/ember/internal/output"
)

// Config list formats besides --json.
const (
	formatKeys = "keys"
	formatYAML = "yaml"
	formatTOML = "toml"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long:  `View and modify Ember configuration settings.`,
	}

	cmd.AddCommand(newConfigListCmd())
	cmd.AddCommand(newConfigGetCmd())
	cmd.AddCommand(newConfigSetCmd())

	return cmd
}

func newConfigListCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all configuration settings",
		Long: `Display all configuration settings and their effective values, including
defaults and EMBER_* environment overrides.`,
		Example: `  ember config list
  ember config list --json
  ember config list --format toml`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())
			cfg := config.Load()
			settings := cfg.All()

			if out.JSON {
				return out.PrintJSON(settings)
			}

			return writeSettings(out, settings, format)
		},
	}

	cmd.Flags().StringVar(&format, "format", formatKeys, "Output format: keys, yaml, toml")

	return cmd
}

func writeSettings(w io.Writer, settings map[string]interface{}, format string) error {
	switch format {
	case formatKeys:
		flat := map[string]interface{}{}
		flattenSettings("", settings, flat)

		keys := make([]string, 0, len(flat))
		for key := range flat {
			keys = append(keys, key)
		}

		sort.Strings(keys)

		for _, key := range keys {
			if _, err := fmt.Fprintf(w, "%s = %v\n", key, flat[key]); err != nil {
				return err
			}
		}

		return nil
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)

		if err := enc.Encode(settings); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}

		return enc.Close()
	case formatTOML:
		if err := toml.NewEncoder(w).Encode(settings); err != nil {
			return fmt.Errorf("encode toml: %w", err)
		}

		return nil
	default:
		return &clierrors.CLIError{
			Message: fmt.Sprintf("Unsupported format: %s", format),
			Hint:    "Use --format keys, yaml, or toml (or --json)",
			Code:    clierrors.ExitUsage,
		}
	}
}

func flattenSettings(prefix string, in, out map[string]interface{}) {
	for key, value := range in {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}

		if nested, ok := value.(map[string]interface{}); ok {
			flattenSettings(full, nested, out)
			continue
		}

		out[full] = value
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Long:  `Retrieve and display the effective value of a single configuration key.`,
		Example: `  ember config get repl.prompt_style
  ember config get history.recall`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())
			key := args[0]
			cfg := config.Load()
			value := cfg.Get(key)

			if value == nil {
				out.Muted("%s is not set", key)
				return nil
			}

			out.Print("%s = %v\n", key, value)

			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Long: `Set a configuration key to the given value. The value is parsed as a YAML
scalar or list and persisted to the config file.`,
		Example: `  ember config set repl.prompt_style ipython
  ember config set repl.pager false
  ember config set repl.startup_files '[~/helpers.star]'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())
			key, raw := args[0], args[1]

			if key == config.KeyPromptStyle && !slices.Contains(config.PromptStyles(), raw) {
				return clierrors.InvalidPromptStyle(raw, config.PromptStyles())
			}

			cfg := config.Load()

			if err := cfg.Set(key, parseValue(raw)); err != nil {
				return clierrors.ConfigFailed("set config", err)
			}

			out.Success("Set %s = %s", key, raw)

			return nil
		},
	}
}

// parseValue decodes raw as YAML so booleans, numbers, and lists keep their
// type in the config file. Anything that does not decode stays a string.
func parseValue(raw string) interface{} {
	var v interface{}
	if err := yaml.Unmarshal([]byte(raw), &v); err != nil || v == nil {
		return raw
	}

	switch v.(type) {
	case bool, int, float64, []interface{}, string:
		return v
	default:
		return raw
	}
}
