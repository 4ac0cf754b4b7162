// Package config implements the config command.
package config

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/biosignal-go/internal/conf"
)

const redacted = "[REDACTED]"

// Command prints the effective configuration as YAML.
func Command(settings *conf.Settings) *cobra.Command {
	var showSecrets bool

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long:  "Print the configuration after defaults, config file, environment variables and flags are merged.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			effective := *settings
			if !showSecrets {
				effective = redact(effective)
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(&effective); err != nil {
				return err
			}
			return enc.Close()
		},
	}

	cmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "Print passwords and DSNs in clear text")
	return cmd
}

// redact masks credentials in a copy of settings.
func redact(s conf.Settings) conf.Settings {
	if s.MQTT.Password != "" {
		s.MQTT.Password = redacted
	}
	if s.Sentry.DSN != "" {
		s.Sentry.DSN = redacted
	}
	return s
}
