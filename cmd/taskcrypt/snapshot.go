package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/taskcrypt/internal/state"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Manage saved project snapshots",
	Long: `Every "tasks list" saves the project as fetched, encrypted names
included. These commands read and manage the saved copies offline.`,
}

var snapshotListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved snapshots",
	Args:  cobra.NoArgs,
	RunE:  runSnapshotList,
}

var snapshotShowCmd = &cobra.Command{
	Use:   "show <project-gid>",
	Short: "Show a saved snapshot, decrypted with the current password",
	Args:  cobra.ExactArgs(1),
	RunE:  runSnapshotShow,
}

var snapshotResetCmd = &cobra.Command{
	Use:   "reset <project-gid>",
	Short: "Delete a saved snapshot",
	Args:  cobra.ExactArgs(1),
	RunE:  runSnapshotReset,
}

var snapshotMigrateCmd = &cobra.Command{
	Use:   "migrate <json|sqlite>",
	Short: "Copy every snapshot into another backend",
	Example: `  taskcrypt snapshot migrate sqlite
  # then set storage.state_backend: sqlite`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{state.BackendJSON, state.BackendSQLite},
	RunE:      runSnapshotMigrate,
}

func init() {
	rootCmd.AddCommand(snapshotCmd)
	snapshotCmd.AddCommand(snapshotListCmd, snapshotShowCmd, snapshotResetCmd, snapshotMigrateCmd)

	addViewFlags(snapshotShowCmd)
}

func runSnapshotList(cmd *cobra.Command, args []string) error {
	infos, err := state.Summaries(apiClient.Snapshots)
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(infos)
		return nil
	}

	if len(infos) == 0 {
		printInfo("No snapshots saved")
		return nil
	}

	rows := make([][]string, len(infos))
	for i, info := range infos {
		rows[i] = []string{
			info.ProjectID,
			orDash(info.ProjectName),
			strconv.Itoa(info.Items),
			info.FetchedAt.Local().Format(time.DateTime),
		}
	}
	printTable([]string{"project", "name", "items", "fetched"}, rows)
	return nil
}

func runSnapshotShow(cmd *cobra.Command, args []string) error {
	records, snap, err := apiClient.OpenSnapshot(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if !jsonOutput {
		printInfo("Snapshot of %s fetched %s", orDash(snap.ProjectName),
			snap.FetchedAt.Local().Format(time.DateTime))
	}
	return printRecords(records)
}

func runSnapshotReset(cmd *cobra.Command, args []string) error {
	projectID := args[0]

	unlock, err := apiClient.Snapshots.Lock(projectID)
	if err != nil {
		return fmt.Errorf("lock snapshot: %w", err)
	}
	defer unlock()

	if err := apiClient.Snapshots.Reset(projectID); err != nil {
		return err
	}

	if jsonOutput {
		printJSON(map[string]interface{}{"success": true, "project": projectID})
		return nil
	}

	printSuccess("Deleted snapshot of %s", projectID)
	return nil
}

func runSnapshotMigrate(cmd *cobra.Command, args []string) error {
	backend := args[0]
	if backend == cfg.Storage.StateBackend {
		return fmt.Errorf("snapshots already use the %s backend", backend)
	}

	target := cfg.Storage
	target.StateBackend = backend

	dst, err := state.New(&target, logger)
	if err != nil {
		return err
	}
	defer dst.Close()

	if err := apiClient.Snapshots.Migrate(dst); err != nil {
		return fmt.Errorf("migrate snapshots: %w", err)
	}

	ids, err := dst.List()
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(map[string]interface{}{"success": true, "backend": backend, "projects": len(ids)})
		return nil
	}

	printSuccess("Copied %d snapshots to the %s backend", len(ids), backend)
	printInfo("Set storage.state_backend to %q to use it", backend)
	return nil
}
