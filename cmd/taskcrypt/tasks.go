package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/taskcrypt/internal/models"
	"github.com/TheMichaelB/taskcrypt/internal/store"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List, show and edit tasks",
}

var tasksListCmd = &cobra.Command{
	Use:   "list <project-gid>",
	Short: "List the tasks and subtasks of a project",
	Long: `List fetches every task of a project with its subtasks, decrypts the
names it can and prints them. The raw records are saved as the project's
snapshot so "snapshot show" works offline.

Filter keys: project, task, status, priority, owner, ownerEmail,
dueDateFrom, dueDateTo, hoursMin, hoursMax. Prefix a sort key with "-"
for descending order.`,
	Example: `  taskcrypt tasks list 1201234567890 --filter status=Pending --sort -estimatedHours
  taskcrypt tasks list 1201234567890 --search milk --offline`,
	Args: cobra.ExactArgs(1),
	RunE: runTasksList,
}

var tasksShowCmd = &cobra.Command{
	Use:   "show <task-gid>",
	Short: "Show a task with its notes",
	Args:  cobra.ExactArgs(1),
	RunE:  runTasksShow,
}

var tasksCreateCmd = &cobra.Command{
	Use:   "create <project-gid> <name>",
	Short: "Create a task, or a subtask with --parent",
	Example: `  taskcrypt tasks create 1201234567890 "Buy milk"
  taskcrypt tasks create - "Check fridge" --parent 1209876543210`,
	Args: cobra.ExactArgs(2),
	RunE: runTasksCreate,
}

var tasksRenameCmd = &cobra.Command{
	Use:   "rename <task-gid> <name>",
	Short: "Rename a task",
	Args:  cobra.ExactArgs(2),
	RunE:  runTasksRename,
}

var tasksEditCmd = &cobra.Command{
	Use:   "edit <project-gid>",
	Short: "Rename several tasks of a project at once",
	Long: `Edit loads a project, applies every --set <task-gid>=<name> to it and
saves the tasks whose name changed. Tasks that fail to save are reported
and the others are kept.`,
	Example: `  taskcrypt tasks edit 1201234567890 --set 1209876543210="Buy oat milk"`,
	Args:    cobra.ExactArgs(1),
	RunE:    runTasksEdit,
}

var (
	listFilters []string
	listSearch  string
	listSort    []string
	listOffline bool

	createParent string
	editSets     []string
)

func init() {
	rootCmd.AddCommand(tasksCmd)
	tasksCmd.AddCommand(tasksListCmd, tasksShowCmd, tasksCreateCmd, tasksRenameCmd, tasksEditCmd)

	addViewFlags(tasksListCmd)
	tasksListCmd.Flags().BoolVar(&listOffline, "offline", false,
		"Use the saved snapshot instead of the API")

	tasksCreateCmd.Flags().StringVar(&createParent, "parent", "",
		"Create a subtask of this task")

	tasksEditCmd.Flags().StringArrayVar(&editSets, "set", nil,
		"New name as <task-gid>=<name> (repeatable)")
	_ = tasksEditCmd.MarkFlagRequired("set")
}

func runTasksList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var (
		records *store.Store
		err     error
	)
	if listOffline {
		records, _, err = apiClient.OpenSnapshot(ctx, args[0])
	} else {
		if err := requireToken(); err != nil {
			return err
		}
		records, err = apiClient.OpenProject(ctx, args[0])
	}
	if err != nil {
		return err
	}

	return printRecords(records)
}

// printRecords applies the view flags to records and prints the visible
// items.
func printRecords(records *store.Store) error {
	if err := applyView(records); err != nil {
		return err
	}

	visible := records.Visible()
	counts := records.Counts()

	if jsonOutput {
		printJSON(map[string]interface{}{
			"items":    visible,
			"total":    counts.Total,
			"filtered": counts.Filtered,
		})
		return nil
	}

	rows := make([][]string, len(visible))
	for i, it := range visible {
		rows[i] = []string{
			it.ID,
			it.DisplayName(),
			it.Status,
			it.Priority,
			orDash(it.Owner),
			orDash(it.DueDate),
			formatHours(it.EstimatedHours),
		}
	}
	printTable([]string{"gid", "task", "status", "priority", "owner", "due", "hours"}, rows)
	printInfo("\n%d of %d items", counts.Filtered, counts.Total)
	return nil
}

func addViewFlags(cmd *cobra.Command) {
	cmd.Flags().StringArrayVarP(&listFilters, "filter", "f", nil,
		"Column filter as key=value (repeatable)")
	cmd.Flags().StringVarP(&listSearch, "search", "s", "",
		"Search term across all text columns")
	cmd.Flags().StringSliceVar(&listSort, "sort", nil,
		"Sort keys, e.g. status,-dueDate")
}

// applyView sets the filter and sort flags on records.
func applyView(records *store.Store) error {
	records.SetGlobalFilter(listSearch)

	for _, f := range listFilters {
		key, value, ok := strings.Cut(f, "=")
		if !ok {
			return fmt.Errorf("invalid filter %q: want key=value", f)
		}
		if err := records.SetColumnFilter(strings.TrimSpace(key), value); err != nil {
			return err
		}
	}

	for i, key := range listSort {
		desc := strings.HasPrefix(key, "-")
		key = strings.TrimPrefix(key, "-")

		// Each call steps the key through asc, desc and off.
		records.SetSort(key, i > 0)
		if desc {
			records.SetSort(key, true)
		}
	}
	return nil
}

func runTasksShow(cmd *cobra.Command, args []string) error {
	if err := requireToken(); err != nil {
		return err
	}

	detail, err := apiClient.Tasks.TaskDetail(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(detail)
		return nil
	}

	fmt.Printf("Task:      %s\n", detail.Name)
	fmt.Printf("GID:       %s\n", detail.GID)
	fmt.Printf("Completed: %t\n", detail.Completed)
	if detail.Assignee != nil {
		fmt.Printf("Assignee:  %s\n", detail.Assignee.Name)
	}
	if detail.DueOn != "" {
		fmt.Printf("Due:       %s\n", detail.DueOn)
	}
	if len(detail.Tags) > 0 {
		names := make([]string, len(detail.Tags))
		for i, tag := range detail.Tags {
			names[i] = tag.Name
		}
		fmt.Printf("Tags:      %s\n", strings.Join(names, ", "))
	}
	if detail.Encrypted {
		printInfo("Encrypted: yes")
	}
	if detail.Notes != "" {
		fmt.Printf("\n%s\n", detail.Notes)
	}
	return nil
}

func runTasksCreate(cmd *cobra.Command, args []string) error {
	if err := requireToken(); err != nil {
		return err
	}

	var (
		task *models.Task
		err  error
	)
	if createParent != "" {
		task, err = apiClient.Tasks.CreateSubtask(cmd.Context(), createParent, args[1])
	} else {
		task, err = apiClient.Tasks.CreateTask(cmd.Context(), args[0], args[1])
	}
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(task)
		return nil
	}

	printSuccess("Created task %s (%s)", task.Name, task.GID)
	return nil
}

func runTasksRename(cmd *cobra.Command, args []string) error {
	if err := requireToken(); err != nil {
		return err
	}

	if err := apiClient.Tasks.RenameTask(cmd.Context(), args[0], args[1]); err != nil {
		return err
	}

	if jsonOutput {
		printJSON(map[string]interface{}{"success": true, "gid": args[0]})
		return nil
	}

	printSuccess("Renamed task %s", args[0])
	return nil
}

func runTasksEdit(cmd *cobra.Command, args []string) error {
	if err := requireToken(); err != nil {
		return err
	}
	ctx := cmd.Context()

	records, err := apiClient.OpenProject(ctx, args[0])
	if err != nil {
		return err
	}

	for _, set := range editSets {
		id, name, ok := strings.Cut(set, "=")
		if !ok {
			return fmt.Errorf("invalid --set %q: want <task-gid>=<name>", set)
		}
		if err := records.UpdateField(strings.TrimSpace(id), models.FieldTask, name); err != nil {
			return fmt.Errorf("edit %s: %w", id, err)
		}
	}

	dirty := records.Counts().DirtyRows
	saved, err := records.SaveChanges(ctx, apiClient.Tasks)

	if jsonOutput {
		out := map[string]interface{}{"saved": saved, "changed": dirty}
		if err != nil {
			out["error"] = err.Error()
		}
		printJSON(out)
		return err
	}

	if saved == 0 && err == nil {
		printInfo("Nothing to save")
		return nil
	}
	if saved > 0 {
		printSuccess("Saved %d of %d changed tasks", saved, dirty)
	}
	if err != nil {
		var errs interface{ Unwrap() []error }
		if errors.As(err, &errs) {
			for _, e := range errs.Unwrap() {
				printWarning("  %v", e)
			}
		}
		return fmt.Errorf("%d tasks were not saved", dirty-saved)
	}
	return nil
}
