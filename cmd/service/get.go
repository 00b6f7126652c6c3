package service

import (
	"fmt"
	"net/http"
	"strings"

	"service-nanny/cmd/root"
	"service-nanny/internal/models"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <service name>",
	Short: "Show the descriptor of a service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var info models.ServiceInfo
		if err := root.Request(http.MethodGet, servicePath(args[0], ""), nil, &info); err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(info)
		}
		fmt.Printf("Name:          %s\n", info.Name)
		fmt.Printf("Description:   %s\n", info.Description)
		fmt.Printf("Version:       %s\n", info.Version)
		fmt.Printf("Status:        %s\n", info.Status)
		fmt.Printf("Exclusive GPU: %t\n", info.RequiresExclusiveResource)
		if info.ResourceUnits > 0 {
			fmt.Printf("VRAM:          %d GB\n", info.ResourceUnits)
		}
		fmt.Printf("Directory:     %s\n", info.WorkingDirectory)
		fmt.Printf("Manifest:      %s\n", info.ManifestPath)
		fmt.Printf("Ports:         %s\n", strings.Join(info.Ports, ", "))
		fmt.Printf("Health URL:    %s (timeout %s)\n", info.HealthCheckURL, info.HealthTimeout)
		fmt.Printf("Last health:   %s\n", healthLabel(info.LastHealth))
		fmt.Printf("Tags:          %s\n", strings.Join(info.Tags, ", "))
		fmt.Printf("Discovered:    %s\n", humanize.Time(info.DiscoveredAt))
		return nil
	},
}

func init() {
	serviceCmd.AddCommand(getCmd)
}
