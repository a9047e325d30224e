package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kilianp07/trena/config"
)

const redacted = "<redacted>"

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration with secrets redacted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return printConfig(cmd.OutOrStdout(), cfg)
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}

// printConfig writes cfg as YAML using the same keys as the configuration file.
func printConfig(w io.Writer, cfg *config.Config) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	var tree map[string]any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return err
	}
	redact(tree)
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(tree); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}

func redact(v any) {
	switch t := v.(type) {
	case map[string]any:
		for k, inner := range t {
			switch strings.ToLower(k) {
			case "password", "token", "dsn":
				if s, ok := inner.(string); ok && s != "" {
					t[k] = redacted
				}
				continue
			}
			redact(inner)
		}
	case []any:
		for _, inner := range t {
			redact(inner)
		}
	}
}
