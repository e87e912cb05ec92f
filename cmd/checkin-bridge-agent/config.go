package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pocketops/checkin-bridge/internal/schedule"
	"github.com/spf13/viper"
)

type Config struct {
	Log      LogConfig
	Server   ServerConfig
	Device   DeviceConfig
	Checkin  CheckinConfig
	Schedule schedule.Config `mapstructure:"schedule"`
	Calendar CalendarConfig
	Timezone string `mapstructure:"timezone"`
}

type ServerConfig struct {
	WsURL  string `mapstructure:"ws_url"`
	ApiURL string `mapstructure:"api_url"`
	Token  string `mapstructure:"token"`
}

type DeviceConfig struct {
	AdbAddr      string `mapstructure:"adb_addr"`
	RequiredSSID string `mapstructure:"required_ssid"`
}

type CheckinConfig struct {
	// Command is the external UI automation driver, e.g.
	// "python3 /opt/checkin/driver.py". The action kind is appended as the
	// last argument.
	Command string `mapstructure:"command"`
}

type CalendarConfig struct {
	Holidays         []string `mapstructure:"holidays"`
	WorkdayOverrides []string `mapstructure:"workday_overrides"`
}

var config Config

func InitConfig() {
	var err error

	_ = godotenv.Load()

	viper.SetConfigName("application")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./cmd/checkin-bridge-agent")
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	_ = viper.BindEnv("server.token", "AGENT_TOKEN")

	viper.SetDefault("timezone", "Asia/Shanghai")

	if err := viper.ReadInConfig(); err != nil {
		panic(err)
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		panic(err)
	}

	if config.Schedule.MorningTime == "" {
		config.Schedule = schedule.DefaultConfig()
	}

	// Initialize logger with configured log level
	initLogger(config.Log.Level)

	// Pretty print config as JSON (only at DEBUG level)
	if strings.ToUpper(config.Log.Level) == LOG_LEVEL_DEBUG {
		configJSON, err := json.MarshalIndent(config, "", "  ")
		if err == nil {
			fmt.Println("Config loaded:")
			fmt.Println(string(configJSON))
		}
	}
}
