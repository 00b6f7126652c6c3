package misc

import (
	"fmt"
	"net/http"

	"service-nanny/cmd/root"
	"service-nanny/internal/models"

	"github.com/spf13/cobra"
)

var rescanCmd = &cobra.Command{
	Use:   "rescan",
	Short: "Rediscover service manifests",
	Long:  `Ask the daemon to rescan the services directory. Running services whose manifest vanished stay tracked until stopped`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return rescan()
	},
}

/**
 * Trigger rediscovery via the daemon
 * @returns {error} Returns error if the daemon is unreachable or the root could not be read
 * @description
 * - Prints the number of discovered services
 * - Lists every manifest skipped with its validation error
 */
func rescan() error {
	var resp models.RediscoverResponse
	if err := root.Request(http.MethodPost, "/rediscover", nil, &resp); err != nil {
		return err
	}
	fmt.Println(resp.Message)
	for _, s := range resp.Skipped {
		fmt.Printf("  skipped %s: %s\n", s.Dir, s.Error)
	}
	return nil
}

func init() {
	root.RootCmd.AddCommand(rescanCmd)
}
