package service

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"

	"service-nanny/cmd/root"

	"github.com/spf13/cobra"
)

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Service operations (list/get/status/start/stop/logs)",
	Long:  `Service operations against a running service-nanny daemon`,
}

var jsonOutput bool

const serviceExample = `  # start a service, stopping whoever holds the accelerator
  service-nanny service start comfyui --force

  # last 50 log lines
  service-nanny service logs llm --tail 50`

func servicePath(name string, suffix string) string {
	p := "/services/" + url.PathEscape(name)
	if suffix != "" {
		p += "/" + suffix
	}
	return p
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}

func init() {
	serviceCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print the raw JSON response")
	root.RootCmd.AddCommand(serviceCmd)

	serviceCmd.Example = serviceExample
}
