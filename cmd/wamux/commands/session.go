package commands

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/telnet2/wamux/internal/credential"
	"github.com/telnet2/wamux/internal/sessionstore"
	"github.com/telnet2/wamux/internal/storage"
	"github.com/telnet2/wamux/pkg/types"
)

var (
	sessionJSON   bool
	sessionPrefix string
	sessionMode   string
	sessionSudo   []string
	sessionID     string
	sessionPurge  bool
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage configured sessions",
	Long: `Manage the session list stored in the data directory.

A running 'wamux serve' picks up these edits through its config watcher.`,
}

var sessionListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List configured sessions",
	RunE:    runSessionList,
}

var sessionAddCmd = &cobra.Command{
	Use:   "add <name> <owner-number>",
	Short: "Add or replace a session",
	Args:  cobra.ExactArgs(2),
	RunE:  runSessionAdd,
}

var sessionRemoveCmd = &cobra.Command{
	Use:     "remove <name>",
	Aliases: []string{"rm"},
	Short:   "Remove a session",
	Args:    cobra.ExactArgs(1),
	RunE:    runSessionRemove,
}

func init() {
	sessionListCmd.Flags().BoolVar(&sessionJSON, "json", false, "Print as JSON")

	sessionAddCmd.Flags().StringVar(&sessionPrefix, "prefix", "", "Command prefix (1-3 characters)")
	sessionAddCmd.Flags().StringVar(&sessionMode, "mode", "", "public or private")
	sessionAddCmd.Flags().StringSliceVar(&sessionSudo, "sudo", nil, "Sudo numbers")
	sessionAddCmd.Flags().StringVar(&sessionID, "session-id", "", "Backup locator used to restore credentials")

	sessionRemoveCmd.Flags().BoolVar(&sessionPurge, "purge", false, "Also erase local credentials")

	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionAddCmd)
	sessionCmd.AddCommand(sessionRemoveCmd)
}

func openStore() (*storage.Storage, *sessionstore.Store) {
	st := storage.New(settings.DataDir)
	return st, sessionstore.New(st, nil)
}

func runSessionList(cmd *cobra.Command, args []string) error {
	_, store := openStore()
	cfg := store.Load(cmd.Context())

	if sessionJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(cfg.Sessions)
	}
	if len(cfg.Sessions) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No sessions configured.")
		return nil
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tOWNER\tPREFIX\tMODE\tSUDO\tBACKUP")
	for _, d := range cfg.Sessions {
		backup := "-"
		if credential.IsLocator(d.SessionID) {
			backup = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			d.Name, d.OwnerNumber, d.EffectivePrefix(), d.EffectiveMode(), strings.Join(d.Sudo, ","), backup)
	}
	return tw.Flush()
}

func runSessionAdd(cmd *cobra.Command, args []string) error {
	_, store := openStore()
	desc := types.SessionDescriptor{
		Name:        args[0],
		OwnerNumber: args[1],
		Prefix:      sessionPrefix,
		Mode:        sessionMode,
		Sudo:        sessionSudo,
		SessionID:   sessionID,
	}
	if err := store.Upsert(cmd.Context(), desc); err != nil {
		return err
	}
	saved, _ := store.FindByName(cmd.Context(), desc.Name)
	fmt.Fprintf(cmd.OutOrStdout(), "Session %s saved (owner %s, prefix %s, mode %s)\n",
		saved.Name, saved.OwnerNumber, saved.EffectivePrefix(), saved.EffectiveMode())
	return nil
}

func runSessionRemove(cmd *cobra.Command, args []string) error {
	st, store := openStore()
	name := args[0]
	removed, err := store.Remove(cmd.Context(), name)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("%w: %s", sessionstore.ErrSessionNotFound, name)
	}
	if sessionPurge {
		if err := credential.NewBootstrap(st, nil).Erase(cmd.Context(), name); err != nil {
			return fmt.Errorf("session removed but credentials could not be erased: %w", err)
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Session %s removed\n", name)
	return nil
}
