package serve

import (
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	cmdUtil "github.com/cedarkv/cedar/cmd/util"
	"github.com/cedarkv/cedar/common"
	"github.com/cedarkv/cedar/lib/db"
	"github.com/cedarkv/cedar/server"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start the cedar server",
		Long:    `Start the cedar server with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is CEDAR_<flag> (e.g. CEDAR_PORT=6379)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(initConfig)

	// add flags
	key := "port"
	ServeCmd.PersistentFlags().Int(key, 6379, cmdUtil.WrapString("The TCP port the RESP listener binds to"))

	key = "dump"
	ServeCmd.PersistentFlags().String(key, "dump.rdb", cmdUtil.WrapString("Path of the snapshot file loaded on boot and written on SAVE and on graceful shutdown"))

	key = "save-interval"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("Interval in seconds between periodic background snapshots (0 = disabled)"))

	key = "debug-addr"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Optional address of an HTTP listener serving /metrics, /stats and pprof (e.g. localhost:6060)"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// processConfig reads the configuration from the command line flags and environment variables
func processConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	serveCmdConfig.Port = viper.GetInt("port")
	serveCmdConfig.DumpPath = viper.GetString("dump")
	serveCmdConfig.SaveIntervalSec = viper.GetInt("save-interval")
	serveCmdConfig.DebugAddr = viper.GetString("debug-addr")
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	return nil
}

// run starts the cedar server and blocks until shutdown completes
func run(_ *cobra.Command, _ []string) error {
	common.InitLoggers(serveCmdConfig.LogLevel)

	server.Logger.Infof("starting cedar server")
	server.Logger.Infof(serveCmdConfig.String())

	database := db.New(serveCmdConfig.DumpPath)
	if err := database.Load(); err != nil {
		server.Logger.Errorf("snapshot load failed: %v", err)
	}

	srv := server.New(*serveCmdConfig, database)

	// exit non-zero on bind failure
	ln, err := net.Listen("tcp", serveCmdConfig.Addr())
	if err != nil {
		return err
	}

	// Ctrl-C triggers the shutdown bus and the final snapshot
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		server.Logger.Infof("received signal %s, shutting down", sig)
		srv.Shutdown()
	}()

	return srv.Serve(ln)
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("cedar")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}
