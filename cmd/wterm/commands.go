package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kalambet/wterm/internal/config"
	"github.com/kalambet/wterm/internal/locale"
	"github.com/kalambet/wterm/internal/settings"
)

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change terminal settings",
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print the current value of a setting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			v, ok := a.store.Get(args[0])
			if !ok {
				return &settings.UnknownKeyError{Key: args[0], Message: a.catalog.Get(locale.ConfNoKey, args[0])}
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatValue(v))
			return nil
		})
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change a setting",
	Long: `Change a setting. Global settings are applied immediately and then sent to
the server for confirmation; a rejection restores the previous value.

Examples:
  wterm config set sqlMaxResults 100
  wterm config set language ru
  wterm config set serverName prod-db --local`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		local, _ := cmd.Flags().GetBool("local")
		key, raw := args[0], args[1]

		return withApp(cmd.Context(), func(a *app) error {
			if err := a.store.Set(key, raw, local); err != nil {
				return err
			}
			v, _ := a.store.Get(key)
			printSuccess("%s", a.catalog.Get(locale.ConfSet, key, formatValue(v)))
			return nil
		})
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every setting",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		return withApp(cmd.Context(), func(a *app) error {
			return writeList(cmd.OutOrStdout(), a, format)
		})
	},
}

var configResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset local settings to their defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			a.store.Reset()
			printSuccess("%s", a.catalog.Get(locale.ConfReset))
			return nil
		})
	},
}

var configLocalesCmd = &cobra.Command{
	Use:   "locales",
	Short: "List the available interface languages",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			active := a.catalog.Locale()
			for _, code := range a.catalog.Locales() {
				marker := " "
				if code == active {
					marker = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", marker, code)
			}
			return nil
		})
	},
}

var configExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Print the current values as JSON or YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		return withApp(cmd.Context(), func(a *app) error {
			values := make(map[string]any)
			for k, e := range a.store.List() {
				values[k] = e.Value
			}
			return encode(cmd.OutOrStdout(), format, values)
		})
	},
}

func init() {
	configSetCmd.Flags().Bool("local", false, "apply without asking the server, even for global settings")
	configListCmd.Flags().String("format", "table", "output format: table, json or yaml")
	configExportCmd.Flags().String("format", "json", "output format: json or yaml")

	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configResetCmd)
	configCmd.AddCommand(configLocalesCmd)
	configCmd.AddCommand(configExportCmd)
}

func writeList(w io.Writer, a *app, format string) error {
	entries := a.store.List()
	if format != "table" {
		return encode(w, format, entries)
	}

	fmt.Fprintln(w, colorize(colorBold, a.catalog.Get(locale.ConfListHeader)))
	for _, k := range a.store.Keys() {
		e := entries[k]
		line := fmt.Sprintf("  %s = %s", k, highlight(formatValue(e.Value)))
		if e.Global {
			line += " " + a.catalog.Get(locale.ConfGlobal)
		}
		fmt.Fprintln(w, line)
	}
	return nil
}

func encode(w io.Writer, format string, v any) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return errors.New("unknown format " + format + "; use json or yaml")
	}
}

// --- sync ---

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Inspect synchronization with the server",
}

var syncLogCmd = &cobra.Command{
	Use:   "log",
	Short: "Show recent confirmation outcomes",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return withApp(cmd.Context(), func(a *app) error {
			entries, err := a.db.ListConfirmations(limit)
			if err != nil {
				return fmt.Errorf("reading sync log: %w", err)
			}
			w := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(w, "No confirmations recorded.")
				return nil
			}
			for _, c := range entries {
				outcome := colorize(colorGreen, "confirmed")
				if c.Ack != settings.AckOK {
					outcome = colorize(colorRed, fmt.Sprintf("rejected (%d)", c.Ack))
				}
				fmt.Fprintf(w, "%s  %-12s %s -> %s  %s\n",
					c.CreatedAt.Local().Format("2006-01-02 15:04:05"),
					c.Key, c.PreviousJSON, c.ValueJSON, outcome)
			}
			return nil
		})
	},
}

var syncGlobalsCmd = &cobra.Command{
	Use:   "globals",
	Short: "Show the server's authoritative global settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/globals")
		if err != nil {
			return err
		}
		var globals map[string]any
		if err := decodeJSON(resp, &globals); err != nil {
			return err
		}
		return encode(cmd.OutOrStdout(), "yaml", globals)
	},
}

func init() {
	syncLogCmd.Flags().Int("limit", 20, "maximum number of entries to show")
	syncCmd.AddCommand(syncLogCmd)
	syncCmd.AddCommand(syncGlobalsCmd)
}

// --- app ---

var appCmd = &cobra.Command{
	Use:   "app",
	Short: "Show or update wterm's own configuration",
}

var appShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s  (%s)\n", colorize(colorBold, k.Key), k.Value, k.EnvVar)
		}
		return nil
	},
}

var appSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return fmt.Errorf("%w (valid keys: %s)", err, strings.Join(config.ValidKeys(), ", "))
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var appUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a configuration value so its default applies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

var appSetTokenCmd = &cobra.Command{
	Use:   "set-token <token>",
	Short: "Store the server bearer token in the platform secret store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SetToken(args[0]); err != nil {
			return fmt.Errorf("storing token: %w", err)
		}
		printSuccess("Token stored")
		return nil
	},
}

func init() {
	appCmd.AddCommand(appShowCmd)
	appCmd.AddCommand(appSetCmd)
	appCmd.AddCommand(appUnsetCmd)
	appCmd.AddCommand(appSetTokenCmd)
}
