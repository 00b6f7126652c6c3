package service

import (
	"fmt"
	"net/http"

	"service-nanny/cmd/root"
	"service-nanny/internal/models"

	"github.com/spf13/cobra"
)

var forceStart bool

var startCmd = &cobra.Command{
	Use:   "start <service name>",
	Short: "Start service",
	Long:  `Start a service. A service requiring the exclusive resource fails while another holds it, unless --force stops the holder first`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return startService(args[0], forceStart)
	},
}

/**
 * Start service by name through the daemon
 * @param {string} serviceName - Name of the service to start
 * @param {bool} force - Stop the current exclusive resource holder first
 * @returns {error} Returns error if the daemon refused or failed the start
 */
func startService(serviceName string, force bool) error {
	var params map[string]interface{}
	if force {
		params = map[string]interface{}{"force": true}
	}
	var resp models.StartResponse
	if err := root.Request(http.MethodPost, servicePath(serviceName, "start"), params, &resp); err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(resp)
	}
	fmt.Println(resp.Message)
	if resp.HealthCheckURL != "" {
		fmt.Printf("health: %s\n", resp.HealthCheckURL)
	}
	return nil
}

func init() {
	startCmd.Flags().BoolVarP(&forceStart, "force", "f", false, "stop the exclusive resource holder first")
	serviceCmd.AddCommand(startCmd)
}
