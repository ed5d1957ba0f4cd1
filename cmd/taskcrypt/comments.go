package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var notesCmd = &cobra.Command{
	Use:   "notes",
	Short: "Edit task descriptions",
}

var notesSetCmd = &cobra.Command{
	Use:   "set <task-gid> <text>",
	Short: "Replace a task description",
	Long: `Set stores the description of a task, encrypted when a master password
is set. An empty text clears the description.`,
	Example: `  taskcrypt notes set 1209876543210 "Two litres" --ask-password
  taskcrypt notes set 1209876543210 ""`,
	Args: cobra.ExactArgs(2),
	RunE: runNotesSet,
}

var commentsCmd = &cobra.Command{
	Use:   "comments",
	Short: "Read and post task comments",
}

var commentsListCmd = &cobra.Command{
	Use:   "list <task-gid>",
	Short: "List the comments of a task",
	Args:  cobra.ExactArgs(1),
	RunE:  runCommentsList,
}

var commentsAddCmd = &cobra.Command{
	Use:   "add <task-gid> <text>",
	Short: "Post a comment",
	Args:  cobra.ExactArgs(2),
	RunE:  runCommentsAdd,
}

func init() {
	rootCmd.AddCommand(notesCmd, commentsCmd)
	notesCmd.AddCommand(notesSetCmd)
	commentsCmd.AddCommand(commentsListCmd, commentsAddCmd)
}

func runNotesSet(cmd *cobra.Command, args []string) error {
	if err := requireToken(); err != nil {
		return err
	}

	if err := apiClient.Tasks.SaveNotes(cmd.Context(), args[0], args[1]); err != nil {
		return err
	}

	if jsonOutput {
		printJSON(map[string]interface{}{
			"success":   true,
			"gid":       args[0],
			"encrypted": apiClient.Crypto.HasPassword() && args[1] != "",
		})
		return nil
	}

	if args[1] == "" {
		printSuccess("Cleared notes of %s", args[0])
	} else {
		printSuccess("Saved notes of %s", args[0])
	}
	return nil
}

func runCommentsList(cmd *cobra.Command, args []string) error {
	if err := requireToken(); err != nil {
		return err
	}

	comments, err := apiClient.Tasks.Comments(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(comments)
		return nil
	}

	if len(comments) == 0 {
		printInfo("No comments")
		return nil
	}

	for _, c := range comments {
		author := orDash(c.Author())
		infoColor.Printf("%s  %s\n", c.CreatedAt.Local().Format(time.DateTime), author)
		fmt.Printf("%s\n\n", c.Text)
	}
	return nil
}

func runCommentsAdd(cmd *cobra.Command, args []string) error {
	if err := requireToken(); err != nil {
		return err
	}

	story, err := apiClient.Tasks.AddComment(cmd.Context(), args[0], args[1])
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(story)
		return nil
	}

	printSuccess("Posted comment %s", story.GID)
	return nil
}
