package service

import (
	"net/http"
	"os"
	"strings"

	"service-nanny/cmd/root"
	"service-nanny/internal/models"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List discovered services",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp models.ServiceListResponse
		if err := root.Request(http.MethodGet, "/services", nil, &resp); err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(resp)
		}
		renderServiceList(resp)
		return nil
	},
}

// renderServiceList 以表格形式输出服务列表
func renderServiceList(resp models.ServiceListResponse) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Name", "Status", "Health", "GPU", "VRAM", "Ports", "Tags", "Discovered"})
	for _, svc := range resp.Services {
		gpu := ""
		if svc.RequiresExclusiveResource {
			gpu = "yes"
			if resp.ExclusiveHolder != nil && *resp.ExclusiveHolder == svc.Name {
				gpu = "holder"
			}
		}
		vram := ""
		if svc.ResourceUnits > 0 {
			vram = humanize.Comma(int64(svc.ResourceUnits)) + " GB"
		}
		t.AppendRow(table.Row{
			svc.Name,
			svc.Status,
			healthLabel(svc.LastHealth),
			gpu,
			vram,
			strings.Join(svc.Ports, ","),
			strings.Join(svc.Tags, ","),
			humanize.Time(svc.DiscoveredAt),
		})
	}
	holder := "none"
	if resp.ExclusiveHolder != nil {
		holder = *resp.ExclusiveHolder
	}
	t.AppendFooter(table.Row{"Total", resp.Total, "", "", "", "", "holder", holder})
	t.Render()
}

func healthLabel(res *models.HealthResult) string {
	switch {
	case res == nil:
		return "-"
	case res.Healthy:
		return "ok " + humanize.Time(res.CheckedAt)
	default:
		return "failing " + humanize.Time(res.CheckedAt)
	}
}

func init() {
	serviceCmd.AddCommand(listCmd)
}
