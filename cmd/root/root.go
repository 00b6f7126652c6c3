package root

import (
	"fmt"
	"os"

	"service-nanny/internal/config"
	"service-nanny/internal/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// ServerMode is set by main before Execute when the daemon is launched.
var ServerMode bool

var cfgFile string

var RootCmd = &cobra.Command{
	Use:           "service-nanny",
	Short:         "Compose service supervisor with exclusive accelerator arbitration",
	Long:          `service-nanny discovers compose services from manifests, starts and stops them on demand and makes sure at most one accelerator-bound service runs at a time`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// initConfig 加载配置并初始化日志
func initConfig() {
	cfg, err := config.Load(viper.GetViper(), cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	config.Config = *cfg
	logger.InitLogger(&config.Config.Log, ServerMode)
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := RootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default ./config.yaml or ~/.service-nanny/config.yaml)")
	flags.String("services-dir", "", "root directory of service manifests")
	flags.String("log-level", "", "log level (debug/info/warn/error)")
	flags.String("socket", "", "unix socket of the daemon, \"-\" forces TCP")

	_ = viper.BindPFlag("services.dir", flags.Lookup("services-dir"))
	_ = viper.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = viper.BindPFlag("server.socket", flags.Lookup("socket"))
}
