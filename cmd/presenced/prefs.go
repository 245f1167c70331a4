package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eliteGoblin/presenced/internal/config"
	"github.com/eliteGoblin/presenced/internal/domain"
	"github.com/eliteGoblin/presenced/internal/infra"
)

var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Show or change display preferences",
	Long: `Preferences set here are stored encrypted and override the config
file. A running daemon only rereads them when restarted, or when the config
file itself changes and is reloaded.

Keys: ` + fmt.Sprint(infra.PreferenceKeys),
}

var prefsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print effective preferences",
	Args:  cobra.NoArgs,
	RunE:  runPrefsShow,
}

var prefsSetCmd = &cobra.Command{
	Use:   "set <key> <true|false>",
	Short: "Store a preference override",
	Args:  cobra.ExactArgs(2),
	RunE:  runPrefsSet,
}

var prefsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Remove every stored override",
	Args:  cobra.NoArgs,
	RunE:  runPrefsReset,
}

var credentialCmd = &cobra.Command{
	Use:   "credential",
	Short: "Manage the presence client id",
}

var credentialSetCmd = &cobra.Command{
	Use:   "set <client-id>",
	Short: "Store the client id, overriding the config file",
	Args:  cobra.ExactArgs(1),
	RunE:  runCredentialSet,
}

func init() {
	prefsCmd.AddCommand(prefsShowCmd)
	prefsCmd.AddCommand(prefsSetCmd)
	prefsCmd.AddCommand(prefsResetCmd)
	credentialCmd.AddCommand(credentialSetCmd)
}

func runPrefsShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	printPreferences(effectivePreferences(cfg, store, zap.NewNop()))
	return nil
}

func runPrefsSet(cmd *cobra.Command, args []string) error {
	value, err := strconv.ParseBool(args[1])
	if err != nil {
		return fmt.Errorf("invalid value %q: %w", args[1], err)
	}
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.SetPreference(args[0], value); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s = %t\n", args[0], value)
	fmt.Fprintln(out, restartNotice)
	return nil
}

func runPrefsReset(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.ClearPreferences(); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), restartNotice)
	return nil
}

// restartNotice is printed after a store change. The daemon reloads on
// config file events only, so stored overrides wait for a restart.
const restartNotice = "restart the running daemon to apply stored preferences"

func runCredentialSet(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.SetSecret(infra.SecretClientID, args[0]); err != nil {
		return err
	}
	fmt.Println("client id stored; restart the daemon to use it")
	if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
		fmt.Println("warning: client id is not a plain integer, the daemon will try it once")
	}
	return nil
}

func printPreferences(p domain.DisplayPreferences) {
	rows := []struct {
		key   string
		value bool
	}{
		{"enabled", p.ShowGame},
		{"show_status", p.ShowStatus},
		{"show_details", p.ShowDetails},
		{"show_first_name", p.ShowFirstName},
		{"show_age", p.ShowAge},
	}
	for _, r := range rows {
		fmt.Printf("  %-16s %t\n", r.key, r.value)
	}
	if !p.ShowStatus {
		fmt.Println("  (status hidden: only the game and elapsed time are shown)")
	}
}
