package misc

import (
	"net/http"
	"os"

	"service-nanny/cmd/root"
	"service-nanny/internal/models"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var eventLimit int

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show recent lifecycle events, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp models.EventsResponse
		params := map[string]interface{}{"limit": eventLimit}
		if err := root.Request(http.MethodGet, "/events", params, &resp); err != nil {
			return err
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"When", "Service", "Action", "Outcome", "Holder", "Detail"})
		for _, ev := range resp.Events {
			t.AppendRow(table.Row{humanize.Time(ev.At), ev.Service, ev.Action, ev.Outcome, ev.Holder, ev.Detail})
		}
		t.Render()
		return nil
	},
}

func init() {
	eventsCmd.Flags().IntVarP(&eventLimit, "limit", "n", 50, "number of events (max 1000)")
	root.RootCmd.AddCommand(eventsCmd)
}
