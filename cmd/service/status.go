package service

import (
	"fmt"
	"net/http"

	"service-nanny/cmd/root"
	"service-nanny/internal/models"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <service name>",
	Short: "Probe whether a service is running and healthy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var st models.ServiceStatus
		if err := root.Request(http.MethodGet, servicePath(args[0], "status"), nil, &st); err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(st)
		}
		fmt.Printf("%s: %s\n", st.Name, describeStatus(st))
		if st.StartedAt != nil {
			fmt.Printf("  started %s (uptime %s)\n", humanize.Time(*st.StartedAt), st.Uptime)
		}
		if st.Orphaned {
			fmt.Println("  manifest no longer discovered, stop it to release its resources")
		}
		if st.LastError != "" {
			fmt.Printf("  last error: %s\n", st.LastError)
		}
		return nil
	},
}

func describeStatus(st models.ServiceStatus) string {
	switch {
	case !st.IsRunning:
		return string(st.State)
	case st.IsHealthy:
		return "running, healthy"
	default:
		return "running, unhealthy"
	}
}

func init() {
	serviceCmd.AddCommand(statusCmd)
}
