package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vishalSecmark/tradewebx-sub002/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage TradeImport configuration",
	Long: `View and modify TradeImport configuration settings.

Values come from the config file, TRADEIMPORT_* environment variables
and a .env file in the working directory, in that order of precedence
after flags.`,
	Example: `  # Show all settings
  tradeimport config

  # Get a single value
  tradeimport config get api.base_url

  # Set a value
  tradeimport config set import.chunk_size 250`,
}

var configGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Get configuration value(s)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE:  runConfigSet,
}

func init() {
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)

	configCmd.Run = func(cmd *cobra.Command, args []string) {
		runConfigList()
	}
}

type configItem struct {
	Key         string
	Description string
}

var configGroups = []struct {
	Name  string
	Items []configItem
}{
	{"Import", []configItem{
		{"import.allowed_extensions", "Accepted file extensions"},
		{"import.max_file_size_mb", "Maximum file size (MB)"},
		{"import.chunk_size", "Rows per chunk (0 = by file size)"},
		{"import.max_retries", "Retries per chunk"},
		{"import.retry_delay_ms", "Delay between retries (ms)"},
		{"import.breaker_threshold", "Consecutive failures before stopping a file"},
		{"import.sheet", "Workbook sheet"},
	}},
	{"Backend", []configItem{
		{"api.base_url", "Backend base URL"},
		{"api.upload_path", "Chunk upload endpoint"},
		{"api.finalize_path", "Post-import endpoint"},
		{"api.targets_path", "Import target catalogue endpoint"},
		{"api.request_timeout", "Request timeout (s)"},
		{"api.rate_limit", "Requests per second"},
		{"api.user_id", "User id"},
		{"api.user_type", "User type"},
	}},
	{"Storage", []configItem{
		{"store.path", "Database file"},
		{"store.queue_key", "Queue storage key"},
		{"notify.driver", "Change notifications (local, redis)"},
		{"notify.redis_addr", "Redis address"},
		{"notify.channel", "Notification channel"},
	}},
	{"Server", []configItem{
		{"server.addr", "Listen address"},
		{"server.mode", "Server mode"},
	}},
	{"Logging", []configItem{
		{"log.level", "Log level"},
		{"log.format", "Log format"},
		{"log.output", "Log output"},
		{"log.file", "Log file path"},
	}},
}

func runConfigList() {
	fmt.Println(color.CyanString("⚙️  TradeImport Configuration"))
	fmt.Println()
	fmt.Printf("Config file: %s\n\n", config.ConfigPath())

	for _, group := range configGroups {
		fmt.Println(color.YellowString(group.Name + ":"))

		t := table.NewWriter()
		t.SetStyle(table.StyleLight)
		t.SetColumnConfigs([]table.ColumnConfig{
			{Number: 1, WidthMax: 30},
			{Number: 2, WidthMax: 45},
			{Number: 3, WidthMax: 40},
		})

		for _, item := range group.Items {
			value := fmt.Sprint(viper.Get(item.Key))
			if value == "" || value == "<nil>" || value == "[]" {
				value = color.New(color.FgHiBlack).Sprint("(not set)")
			}
			t.AppendRow(table.Row{item.Key, item.Description, value})
		}

		fmt.Println(t.Render())
		fmt.Println()
	}

	if targets := config.Get().Targets; len(targets) > 0 {
		fmt.Println(color.YellowString("Targets:"))
		t := table.NewWriter()
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"ID", "File Name", "Type", "Exchange", "Segment", "Enabled"})
		for _, tc := range targets {
			t.AppendRow(table.Row{tc.ID, tc.FileName, tc.FileType, tc.Exchange, tc.Segment, tc.Enabled})
		}
		fmt.Println(t.Render())
		fmt.Println()
	}

	fmt.Println("Use 'tradeimport config set <key> <value>' to update settings")
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		keys := viper.AllKeys()
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Printf("%s=%v\n", key, viper.Get(key))
		}
		return nil
	}

	key := args[0]
	if !viper.IsSet(key) {
		return fmt.Errorf("configuration key not found: %s", key)
	}

	fmt.Println(viper.Get(key))
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]

	if !knownKey(key) {
		fmt.Println(color.YellowString("Warning: '%s' is not a recognized configuration key", key))
		var proceed bool
		prompt := &survey.Confirm{
			Message: "Set it anyway?",
			Default: false,
		}
		if err := survey.AskOne(prompt, &proceed); err != nil || !proceed {
			return nil
		}
	}

	newValue, err := convertValue(viper.Get(key), value)
	if err != nil {
		return err
	}
	viper.Set(key, newValue)

	if err := config.Save(); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Println(color.GreenString("✓ Set %s = %v", key, newValue))
	return nil
}

func knownKey(key string) bool {
	for _, group := range configGroups {
		for _, item := range group.Items {
			if item.Key == key {
				return true
			}
		}
	}
	return false
}

// convertValue parses value into the type of the current setting.
func convertValue(current interface{}, value string) (interface{}, error) {
	switch current.(type) {
	case bool:
		return strconv.ParseBool(value)
	case int, int64:
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("expected an integer, got %q", value)
		}
		return n, nil
	case float64:
		return strconv.ParseFloat(value, 64)
	case []string, []interface{}:
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts, nil
	default:
		return value, nil
	}
}
