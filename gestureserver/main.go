package main

import (
	"time"

	"github.com/BertoldVdb/GestureResearch/gestureserver/config"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var RootCmd = &cobra.Command{
	Use:   "gestured",
	Short: "serve APDS9960 gesture sensors over HTTP and MQTT",
	Long:  "serve APDS9960 gesture sensors over HTTP and MQTT",
}

func ServeCmdFlags(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "default configuration path")
	cmd.Flags().IntP("port", "p", config.DefaultAPIPort, "port the API listens on")
	cmd.Flags().StringP("interface", "i", config.DefaultAPIInterface, "interface the API listens on")
	cmd.Flags().String("apikey", "", "API key used to derive basic auth passwords")
	cmd.Flags().String("broker", "", "MQTT broker address, empty disables MQTT")
	cmd.Flags().Bool("debug", false, "toggle debug logging")
}

var ServeCmd = &cobra.Command{
	Use: "serve",
	SuggestFor: []string{
		"ru", "ser",
	},
	Short: "serve start the gesture daemon using predefined configs.",
	Long: `serve start the gesture daemon using predefined configs, by the following order:
1. path specified in --config flag
2. path defined GESTURED_CONFIG environment variable
3. default location $HOME/.config/gestured/config.yaml, /etc/gestured/config.yaml, current directory
The parameters in the configuration file will be overwritten by the following order:
1. command line arguments
2. environment variables
`,
	Example: `  gestured serve --config=/path/to/config`,
	RunE:    ServeCmdRunE,
}

func InitCmdFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("print", false, "print config to stdout")
	cmd.Flags().BoolP("yes", "y", false, "overwrite")
	cmd.Flags().StringP("output", "o", config.DefaultConfig, "specify output directory")
}

var InitCmd = &cobra.Command{
	Use: "init",
	SuggestFor: []string{
		"ini", "in",
	},
	Short: "init create a configuration template",
	Long: `init create a configuration template.
If --print flag is present, the configuration will be printed to stdout.
If --output / -o flag is present, the configuration will be saved to the path specified
Otherwise init will output configuration file to $HOME/.config/gestured/config.yaml
If --yes / -y flag is present, the configuration will be overwrite without confirmation
`,
	Example: `  gestured init --print
  gestured init -o /path/to/config.yaml -y`,
	RunE: config.InitCfg,
}

func DumpCmdFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("debug", false, "log every register access")
}

var DumpCmd = &cobra.Command{
	Use:   "dump <path>",
	Short: "dump print the configuration registers of a sensor",
	Long: `dump opens a sensor without changing its configuration and prints every
configuration register as name, address, hex, binary and decimal value.
Sensor paths are usb:<serial>:<addr> or platform:<bus>:<powerpin>:<addr>.
`,
	Example: `  gestured dump usb::0x39
  gestured dump platform:/dev/i2c-1`,
	Args: cobra.ExactArgs(1),
	RunE: DumpCmdRunE,
}

func WatchCmdFlags(cmd *cobra.Command) {
	cmd.Flags().String("sensor", "", "sensor name to look up with zeroconf when no URL is given")
	cmd.Flags().String("user", "", "basic auth user")
	cmd.Flags().String("password", "", "basic auth password")
	cmd.Flags().Duration("timeout", 10*time.Second, "zeroconf lookup timeout")
}

var WatchCmd = &cobra.Command{
	Use:   "watch [url]",
	Short: "watch print the gestures seen by a running daemon",
	Long: `watch follows the gesture stream of one sensor of a running daemon.
Without a URL the daemon is looked up with zeroconf.
`,
	Example: `  gestured watch http://10.0.0.5:8067/hall
  gestured watch --sensor hall`,
	Args: cobra.MaximumNArgs(1),
	RunE: WatchCmdRunE,
}

func CredentialCmdFlags(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "default configuration path")
	cmd.Flags().String("apikey", "", "API key used to derive basic auth passwords")
	cmd.Flags().Duration("valid", 365*24*time.Hour, "validity of the credentials")
}

var CredentialCmd = &cobra.Command{
	Use:   "credential [sensor]",
	Short: "credential derive basic auth credentials from the API key",
	Long: `credential prints a user and password accepted by a daemon using the
same api_key. With a sensor name the credentials only open the API of that
sensor; without one they open every sensor.
`,
	Example: `  gestured credential hall --valid 720h`,
	Args:    cobra.MaximumNArgs(1),
	RunE:    CredentialCmdRunE,
}

func getRootCmd() *cobra.Command {
	ServeCmdFlags(ServeCmd)
	RootCmd.AddCommand(ServeCmd)

	InitCmdFlags(InitCmd)
	RootCmd.AddCommand(InitCmd)

	DumpCmdFlags(DumpCmd)
	RootCmd.AddCommand(DumpCmd)

	WatchCmdFlags(WatchCmd)
	RootCmd.AddCommand(WatchCmd)

	CredentialCmdFlags(CredentialCmd)
	RootCmd.AddCommand(CredentialCmd)

	return RootCmd
}

func main() {
	if err := getRootCmd().Execute(); err != nil {
		log.Fatalln(err)
	}
}
