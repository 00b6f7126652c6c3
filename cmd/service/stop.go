package service

import (
	"fmt"
	"net/http"

	"service-nanny/cmd/root"
	"service-nanny/internal/models"

	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop <service name>",
	Short: "Stop service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp models.StopResponse
		if err := root.Request(http.MethodPost, servicePath(args[0], "stop"), nil, &resp); err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(resp)
		}
		fmt.Println(resp.Message)
		return nil
	},
}

func init() {
	serviceCmd.AddCommand(stopCmd)
}
