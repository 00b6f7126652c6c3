package service

import (
	"fmt"
	"net/http"

	"service-nanny/cmd/root"
	"service-nanny/internal/models"

	"github.com/spf13/cobra"
)

var tailLines int

var logsCmd = &cobra.Command{
	Use:   "logs <service name>",
	Short: "Print the tail of a service's runtime logs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		params := map[string]interface{}{"tail": tailLines}
		var resp models.LogsResponse
		if err := root.Request(http.MethodGet, servicePath(args[0], "logs"), params, &resp); err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(resp)
		}
		for _, line := range resp.Logs {
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	logsCmd.Flags().IntVarP(&tailLines, "tail", "n", 100, "number of lines (max 10000)")
	serviceCmd.AddCommand(logsCmd)
}
