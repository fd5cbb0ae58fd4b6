package cmd

import (
	"encoding/json"
	"net/http"

	"github.com/spf13/cobra"
)

var (
	projectTitle  string
	projectOwner  string
	projectTarget string
	projectReject bool
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage fundraising projects",
}

var projectCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a project waiting for review",
	RunE: func(cmd *cobra.Command, args []string) error {
		np := map[string]any{
			"title":         projectTitle,
			"owner":         projectOwner,
			"target_amount": json.Number(projectTarget),
		}
		return postAndPrint(cmd, "/v1/projects", np)
	},
}

var projectApproveCmd = &cobra.Command{
	Use:   "approve <id>",
	Short: "Approve or reject a project under review",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return postAndPrint(cmd, "/v1/projects/"+args[0]+"/approve", map[string]any{"approve": !projectReject})
	},
}

var projectOnChainCmd = &cobra.Command{
	Use:   "onchain <id>",
	Short: "Record an approved project on the ledger",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return postAndPrint(cmd, "/v1/projects/"+args[0]+"/onchain", nil)
	},
}

var projectGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Print a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getAndPrint(cmd, "/v1/projects/"+args[0])
	},
}

var projectProgressCmd = &cobra.Command{
	Use:   "progress <id>",
	Short: "Print how far a project is toward its target",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getAndPrint(cmd, "/v1/projects/"+args[0]+"/progress")
	},
}

func init() {
	rootCmd.AddCommand(projectCmd)
	projectCmd.AddCommand(projectCreateCmd, projectApproveCmd, projectOnChainCmd, projectGetCmd, projectProgressCmd)

	projectCreateCmd.Flags().StringVar(&projectTitle, "title", "", "Title of the project.")
	projectCreateCmd.Flags().StringVar(&projectOwner, "owner", "", "Address of the project owner.")
	projectCreateCmd.Flags().StringVar(&projectTarget, "target", "0", "Amount the project wants to raise.")
	projectApproveCmd.Flags().BoolVar(&projectReject, "reject", false, "Reject the project instead.")
}

func postAndPrint(cmd *cobra.Command, path string, body any) error {
	var result map[string]any
	if err := call(newClient(), http.MethodPost, path, body, &result); err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), result)
}

func getAndPrint(cmd *cobra.Command, path string) error {
	var result map[string]any
	if err := call(newClient(), http.MethodGet, path, nil, &result); err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), result)
}
