package main

import (
	"github.com/spf13/cobra"

	"github.com/TheMichaelB/taskcrypt/internal/models"
)

var workspacesCmd = &cobra.Command{
	Use:   "workspaces",
	Short: "List available workspaces",
	Args:  cobra.NoArgs,
	RunE:  runWorkspaces,
}

var projectsCmd = &cobra.Command{
	Use:     "projects <workspace-gid>",
	Short:   "List the active projects of a workspace",
	Example: `  taskcrypt projects 1201234567890`,
	Args:    cobra.ExactArgs(1),
	RunE:    runProjects,
}

var projectsCreateCmd = &cobra.Command{
	Use:   "create <workspace-gid> <name>",
	Short: "Create a project",
	Long:  `Create a project in a workspace. Project names are never encrypted.`,
	Args:  cobra.ExactArgs(2),
	RunE:  runProjectsCreate,
}

var projectTeam string

func init() {
	rootCmd.AddCommand(workspacesCmd, projectsCmd)
	projectsCmd.AddCommand(projectsCreateCmd)

	projectsCreateCmd.Flags().StringVar(&projectTeam, "team", "",
		"Team GID (required in organizations)")
}

func runWorkspaces(cmd *cobra.Command, args []string) error {
	if err := requireToken(); err != nil {
		return err
	}

	workspaces, err := apiClient.Tasks.Workspaces(cmd.Context())
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(workspaces)
		return nil
	}

	if len(workspaces) == 0 {
		printInfo("No workspaces found")
		return nil
	}

	rows := make([][]string, len(workspaces))
	for i, ws := range workspaces {
		rows[i] = []string{ws.GID, ws.Name}
	}
	printTable([]string{"gid", "name"}, rows)
	return nil
}

func runProjects(cmd *cobra.Command, args []string) error {
	if err := requireToken(); err != nil {
		return err
	}

	projects, err := apiClient.Tasks.Projects(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(projects)
		return nil
	}

	if len(projects) == 0 {
		printInfo("No projects found")
		return nil
	}

	rows := make([][]string, len(projects))
	for i, p := range projects {
		rows[i] = []string{p.GID, p.Name}
	}
	printTable([]string{"gid", "name"}, rows)
	return nil
}

func runProjectsCreate(cmd *cobra.Command, args []string) error {
	if err := requireToken(); err != nil {
		return err
	}

	project, err := apiClient.Tasks.CreateProject(cmd.Context(), models.CreateProjectRequest{
		Workspace: args[0],
		Name:      args[1],
		Team:      projectTeam,
	})
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(project)
		return nil
	}

	printSuccess("Created project %s (%s)", project.Name, project.GID)
	return nil
}
