package main

import (
	"github.com/aretw0/mintline/internal/cli"
	"github.com/aretw0/mintline/internal/presentation/tui"
	"github.com/spf13/cobra"
)

var workflowCmd = &cobra.Command{
	Use:     "workflow",
	Aliases: []string{"wf"},
	Short:   "Manage stored workflows",
	Long:    `List, inspect, continue and remove the workflows kept in the configured store.`,
}

var workflowLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List all workflows",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		asJSON, _ := cmd.Flags().GetBool("json")
		return cli.ListWorkflows(cmd.Context(), app.Service, cmd.OutOrStdout(), asJSON)
	},
}

var workflowInspectCmd = &cobra.Command{
	Use:   "inspect <workflow-id>",
	Short: "Inspect the state of a workflow",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		asJSON, _ := cmd.Flags().GetBool("json")
		return cli.InspectWorkflow(cmd.Context(), app.Service, cmd.OutOrStdout(), args[0], asJSON)
	},
}

var workflowRmCmd = &cobra.Command{
	Use:   "rm <workflow-id>...",
	Short: "Remove one or more workflows",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		return cli.RemoveWorkflows(cmd.Context(), app.Service, cmd.OutOrStdout(), args)
	},
}

var workflowGraphCmd = &cobra.Command{
	Use:   "graph [workflow-id]",
	Short: "Print the stage graph as a Mermaid flowchart",
	Long:  `Prints every stage and transition. With a workflow ID, the stages it went through are highlighted.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := ""
		if len(args) == 1 {
			id = args[0]
		}
		app, err := buildApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		return cli.PrintGraph(cmd.Context(), app.Service, cmd.OutOrStdout(), id)
	},
}

func continueCmd(action cli.Action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   string(action) + " <workflow-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc := cli.NewSignalContext(cmd.Context())
			defer sc.Cancel()
			cmd.SetContext(sc)

			app, err := buildApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			_, err = cli.Continue(sc, app.Service, tui.NewPrinter(cmd.OutOrStdout()), args[0], action)
			return err
		},
	}
}

func init() {
	rootCmd.AddCommand(workflowCmd)
	workflowCmd.AddCommand(workflowLsCmd)
	workflowCmd.AddCommand(workflowInspectCmd)
	workflowCmd.AddCommand(workflowRmCmd)
	workflowCmd.AddCommand(workflowGraphCmd)
	workflowCmd.AddCommand(continueCmd(cli.ActionSign, "Sign and submit the emission of a workflow ready to sign"))
	workflowCmd.AddCommand(continueCmd(cli.ActionRetry, "Retry the failed stage of a workflow"))
	workflowCmd.AddCommand(continueCmd(cli.ActionReset, "Abandon a workflow and return it to IDLE"))

	workflowLsCmd.Flags().Bool("json", false, "Print JSON instead of a table")
	workflowInspectCmd.Flags().Bool("json", false, "Print the raw snapshot as JSON")
}
