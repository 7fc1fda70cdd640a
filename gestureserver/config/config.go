package config

import (
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/BertoldVdb/GestureResearch/apds9960"
	"github.com/BertoldVdb/GestureResearch/gesturemqtt"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const DefaultAppName = "gestured"
const DefaultConfigName = "config"
const DefaultAPIInterface = "0.0.0.0"
const DefaultAPIPort = 8067
const DefaultSensorPath = "platform:/dev/i2c-1::0x39"
const DefaultPollInterval = 20 * time.Millisecond

var userHomeDir, _ = os.UserHomeDir()
var DefaultConfig = path.Join(userHomeDir, ".config/"+DefaultAppName+"/"+DefaultConfigName+".yaml")
var DefaultConfigSearchPath0 = path.Join(userHomeDir, ".config", DefaultAppName)

const DefaultConfigSearchPath1 = "/etc/" + DefaultAppName
const DefaultConfigSearchPath2 = "./"

type APIOpt struct {
	Port      int    `yaml:"port" mapstructure:"port"`
	Interface string `yaml:"interface" mapstructure:"interface"`
	APIKey    string `yaml:"api_key" mapstructure:"api_key"`
}

func (o APIOpt) Address() string {
	return fmt.Sprintf("%s:%d", o.Interface, o.Port)
}

// SensorOpt describes one sensor the daemon opens. Config, when present, is
// written to the sensor after the baseline configuration.
type SensorOpt struct {
	Name              string           `yaml:"name" mapstructure:"name"`
	Path              string           `yaml:"path" mapstructure:"path"`
	Rotation          int              `yaml:"rotation" mapstructure:"rotation"`
	PollInterval      time.Duration    `yaml:"poll_interval" mapstructure:"poll_interval"`
	MaxDatasets       int              `yaml:"max_datasets" mapstructure:"max_datasets"`
	HighPassThreshold uint8            `yaml:"high_pass_threshold" mapstructure:"high_pass_threshold"`
	Config            *apds9960.Config `yaml:"config,omitempty" mapstructure:"config"`
}

// DriverOpts returns the options used to open the sensor.
func (o SensorOpt) DriverOpts() apds9960.Opts {
	opts := apds9960.DefaultOpts
	opts.Rotation = o.Rotation
	if o.MaxDatasets > 0 {
		opts.MaxDatasets = o.MaxDatasets
	}
	if o.HighPassThreshold > 0 {
		opts.HighPassThreshold = o.HighPassThreshold
	}
	return opts
}

type DiscoveryOpt struct {
	Enable    bool   `yaml:"enable" mapstructure:"enable"`
	Interface string `yaml:"interface" mapstructure:"interface"`
	Name      string `yaml:"name" mapstructure:"name"`
}

type GesturedOpt struct {
	API       APIOpt             `yaml:"api" mapstructure:"api"`
	Sensors   []SensorOpt        `yaml:"sensors" mapstructure:"sensors"`
	Discovery DiscoveryOpt       `yaml:"discovery" mapstructure:"discovery"`
	MQTT      gesturemqtt.Config `yaml:"mqtt" mapstructure:"mqtt"`
	Debug     bool               `yaml:"debug" mapstructure:"debug"`
}

type GesturedDesc struct {
	Opt   GesturedOpt
	Viper *viper.Viper
}

func NewGesturedDesc() GesturedDesc {
	return GesturedDesc{
		Opt:   NewGesturedOpt(),
		Viper: nil,
	}
}

func NewGesturedOpt() GesturedOpt {
	return GesturedOpt{
		API: APIOpt{
			Port:      DefaultAPIPort,
			Interface: DefaultAPIInterface,
		},
		Sensors: []SensorOpt{
			{
				Name:              "gesture0",
				Path:              DefaultSensorPath,
				PollInterval:      DefaultPollInterval,
				MaxDatasets:       apds9960.DefaultOpts.MaxDatasets,
				HighPassThreshold: apds9960.DefaultOpts.HighPassThreshold,
			},
		},
		Discovery: DiscoveryOpt{
			Enable: false,
			Name:   DefaultAppName,
		},
		MQTT: gesturemqtt.Config{
			ClientID:    DefaultAppName,
			TopicPrefix: DefaultAppName,
		},
		Debug: false,
	}
}

// Validate checks the sensor list and applies per-sensor defaults.
func (o *GesturedOpt) Validate() error {
	if len(o.Sensors) == 0 {
		return errors.New("no sensors configured")
	}

	seen := make(map[string]bool)
	for i := range o.Sensors {
		s := &o.Sensors[i]
		if s.Path == "" {
			return fmt.Errorf("sensor %d: no path", i)
		}
		if s.Name == "" {
			s.Name = fmt.Sprintf("gesture%d", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("sensor %d: duplicate name %q", i, s.Name)
		}
		seen[s.Name] = true

		if s.PollInterval <= 0 {
			s.PollInterval = DefaultPollInterval
		}
		switch s.Rotation {
		case 0, 90, 180, 270:
		default:
			return fmt.Errorf("sensor %s: rotation %d is not 0, 90, 180 or 270", s.Name, s.Rotation)
		}
		if s.Config != nil {
			if err := s.Config.Validate(); err != nil {
				return fmt.Errorf("sensor %s: %w", s.Name, err)
			}
		}
	}

	if o.Discovery.Enable && o.Discovery.Interface == "" {
		return errors.New("discovery enabled without an interface")
	}

	return nil
}

func (o *GesturedDesc) Parse(cmd *cobra.Command) error {
	vipCfg := viper.New()
	vipCfg.SetDefault("api.port", DefaultAPIPort)
	vipCfg.SetDefault("api.interface", DefaultAPIInterface)
	vipCfg.SetDefault("api.api_key", "")
	vipCfg.SetDefault("discovery.enable", false)
	vipCfg.SetDefault("discovery.interface", "")
	vipCfg.SetDefault("discovery.name", DefaultAppName)
	vipCfg.SetDefault("mqtt.broker", "")
	vipCfg.SetDefault("mqtt.client_id", DefaultAppName)
	vipCfg.SetDefault("mqtt.topic_prefix", DefaultAppName)
	vipCfg.SetDefault("mqtt.bulb", "")
	vipCfg.SetDefault("debug", false)

	if configFileCmd, err := cmd.Flags().GetString("config"); err == nil && configFileCmd != "" {
		vipCfg.SetConfigFile(configFileCmd)
	} else {
		configFileEnv := os.Getenv("GESTURED_CONFIG")
		if configFileEnv != "" {
			vipCfg.SetConfigFile(configFileEnv)
		} else {
			vipCfg.SetConfigName(DefaultConfigName)
			vipCfg.SetConfigType("yaml")
			vipCfg.AddConfigPath(DefaultConfigSearchPath0)
			vipCfg.AddConfigPath(DefaultConfigSearchPath1)
			vipCfg.AddConfigPath(DefaultConfigSearchPath2)
		}
	}

	vipCfg.SetEnvPrefix(DefaultAppName)
	vipCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vipCfg.AutomaticEnv()

	bind := func(key string, flag string) {
		if f := cmd.Flags().Lookup(flag); f != nil {
			_ = vipCfg.BindPFlag(key, f)
		}
	}
	bind("api.port", "port")
	bind("api.interface", "interface")
	bind("api.api_key", "apikey")
	bind("mqtt.broker", "broker")
	bind("debug", "debug")

	if err := vipCfg.ReadInConfig(); err == nil {
		log.Debugln("using config file:", vipCfg.ConfigFileUsed())
	} else {
		log.Warnln(err)
	}

	// A configured sensor list replaces the default one instead of merging
	// into it.
	if vipCfg.IsSet("sensors") {
		o.Opt.Sensors = sensorDefaults(vipCfg.Get("sensors"))
	}

	if err := vipCfg.Unmarshal(&o.Opt); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	o.Viper = vipCfg
	return nil
}

// sensorDefaults returns one default entry per configured sensor, so keys
// omitted in the file keep their defaults. A sensor with a config section
// starts from apds9960.DefaultConfig.
func sensorDefaults(raw interface{}) []SensorOpt {
	list, ok := raw.([]interface{})
	if !ok {
		return nil
	}

	sensors := make([]SensorOpt, len(list))
	for i, item := range list {
		sensors[i] = SensorOpt{
			PollInterval:      DefaultPollInterval,
			MaxDatasets:       apds9960.DefaultOpts.MaxDatasets,
			HighPassThreshold: apds9960.DefaultOpts.HighPassThreshold,
		}

		if m, ok := item.(map[string]interface{}); ok {
			if _, ok := m["config"]; ok {
				cfg := apds9960.DefaultConfig
				sensors[i].Config = &cfg
			}
		}
	}
	return sensors
}

func (o *GesturedDesc) PostParse() {
	if o.Opt.Debug {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}

// InitCfg writes or prints a configuration template.
func InitCfg(cmd *cobra.Command, _ []string) error {
	printFlag, _ := cmd.Flags().GetBool("print")
	outputPath, _ := cmd.Flags().GetString("output")
	overwriteFlag, _ := cmd.Flags().GetBool("yes")

	desc := NewGesturedDesc()
	if err := desc.Parse(cmd); err != nil {
		log.Errorln(err)
		return err
	}

	if printFlag {
		configBuffer, err := yaml.Marshal(desc.Opt)
		if err != nil {
			return err
		}
		fmt.Println(string(configBuffer))
		return nil
	}

	return DumpOption(desc.Opt, outputPath, overwriteFlag)
}
