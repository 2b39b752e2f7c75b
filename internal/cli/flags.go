package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/coyt0001/hcrecalls-dynamodb-loader/internal/config"
)

func addGlobalFlags(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.String("config", config.DefaultFile, "YAML config file")
	f.StringSlice("env-file", []string{".env"}, "dotenv files to read")
	f.String("region", "", "AWS region")
	f.String("endpoint", "", "DynamoDB endpoint override, e.g. http://localhost:8000")
	f.String("table", "", "target table name")
	f.String("key", "", "partition key attribute")
	f.String("data-dir", "", "directory for staged files and dry-run output")
	f.String("base-url", "", "recalls API base URL")
	f.String("lang", "", "recalls language, en or fr")
	f.Duration("pacing", 0, "delay between batch submissions")
	f.Int("max-waves", 0, "retry waves before giving up on unprocessed items")
	f.Duration("table-wait", 0, "how long to wait for a created table; 0 skips the wait")
	f.String("log-level", "", "trace, debug, info, warn or error")
	f.String("log-format", "", "console or json")
}

// applyFlags copies every flag the user set onto cfg.
func applyFlags(f *pflag.FlagSet, cfg *config.Config) error {
	strs := map[string]*string{
		"region":     &cfg.AWS.Region,
		"endpoint":   &cfg.AWS.Endpoint,
		"table":      &cfg.Table.Name,
		"key":        &cfg.Table.Key,
		"data-dir":   &cfg.DataDir,
		"base-url":   &cfg.Fetch.BaseURL,
		"lang":       &cfg.Fetch.Language,
		"log-level":  &cfg.Log.Level,
		"log-format": &cfg.Log.Format,
	}
	for name, dst := range strs {
		if !f.Changed(name) {
			continue
		}
		v, err := f.GetString(name)
		if err != nil {
			return err
		}
		*dst = v
	}
	if f.Changed("pacing") {
		v, err := f.GetDuration("pacing")
		if err != nil {
			return err
		}
		cfg.Upload.Pacing = v
	}
	if f.Changed("table-wait") {
		v, err := f.GetDuration("table-wait")
		if err != nil {
			return err
		}
		cfg.Upload.TableWait = v
	}
	if f.Changed("max-waves") {
		v, err := f.GetInt("max-waves")
		if err != nil {
			return err
		}
		cfg.Upload.MaxWaves = v
	}
	return nil
}
