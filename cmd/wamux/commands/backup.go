package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/telnet2/wamux/internal/credential"
	"github.com/telnet2/wamux/internal/sessionstore"
)

var (
	backupSave  bool
	backupForce bool
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Push or pull sealed session credentials",
	Long: `Upload a session's credentials to the configured blob store, or restore
them from a locator. Blobs are compressed and encrypted; the locator printed
by 'push' holds the only key.`,
}

var backupPushCmd = &cobra.Command{
	Use:   "push <name>",
	Short: "Upload a session's credentials and print the locator",
	Args:  cobra.ExactArgs(1),
	RunE:  runBackupPush,
}

var backupPullCmd = &cobra.Command{
	Use:   "pull <name> [locator]",
	Short: "Restore a session's credentials from a locator",
	Long: `Restore a session's credentials. Without a locator argument the session's
configured sessionId is used.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runBackupPull,
}

func init() {
	backupPushCmd.Flags().BoolVar(&backupSave, "save", false, "Store the locator as the session's sessionId")
	backupPullCmd.Flags().BoolVar(&backupForce, "force", false, "Replace existing local credentials")

	backupCmd.AddCommand(backupPushCmd)
	backupCmd.AddCommand(backupPullCmd)
}

func openBootstrap() (*credential.Bootstrap, *sessionstore.Store, error) {
	backup, err := openBackup(settings)
	if err != nil {
		return nil, nil, err
	}
	if !backup.Configured() {
		return nil, nil, fmt.Errorf("%w: set backupUrl or WAMUX_BACKUP_URL", credential.ErrNoBackup)
	}
	st, store := openStore()
	return credential.NewBootstrap(st, backup), store, nil
}

func runBackupPush(cmd *cobra.Command, args []string) error {
	boot, store, err := openBootstrap()
	if err != nil {
		return err
	}
	name := args[0]
	loc, err := boot.Push(cmd.Context(), name)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), loc.String())

	if backupSave {
		desc, ok := store.FindByName(cmd.Context(), name)
		if !ok {
			return fmt.Errorf("%w: %s", sessionstore.ErrSessionNotFound, name)
		}
		desc.SessionID = loc.String()
		if err := store.Upsert(cmd.Context(), desc); err != nil {
			return err
		}
	}
	return nil
}

func runBackupPull(cmd *cobra.Command, args []string) error {
	boot, store, err := openBootstrap()
	if err != nil {
		return err
	}
	name := args[0]
	desc, ok := store.FindByName(cmd.Context(), name)
	if !ok {
		return fmt.Errorf("%w: %s", sessionstore.ErrSessionNotFound, name)
	}
	if len(args) == 2 {
		desc.SessionID = args[1]
	}
	if !credential.IsLocator(desc.SessionID) {
		return fmt.Errorf("%w: session %s has no backup locator", credential.ErrInvalidLocator, name)
	}

	if boot.HasLocal(cmd.Context(), name) {
		if !backupForce {
			return errors.New("local credentials exist, use --force to replace them")
		}
		if err := boot.Erase(cmd.Context(), name); err != nil {
			return err
		}
	}
	restored, err := boot.Ensure(cmd.Context(), desc)
	if err != nil {
		return err
	}
	if !restored {
		return errors.New("nothing was restored")
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Credentials for %s restored to %s\n", name, boot.Dir(name))
	return nil
}
