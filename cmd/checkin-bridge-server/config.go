package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pocketops/checkin-bridge/internal/api/http"
	"github.com/pocketops/checkin-bridge/internal/db"
	"github.com/spf13/viper"
)

type Config struct {
	Log       LogConfig
	Http      http.Config
	Database  db.Config
	Artifacts ArtifactsConfig
	Timezone  string `mapstructure:"timezone"`
}

type ArtifactsConfig struct {
	Dir string `mapstructure:"dir"`
}

var config Config

func InitConfig() {
	var err error

	_ = godotenv.Load()

	viper.SetConfigName("application")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./cmd/checkin-bridge-server")
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	_ = viper.BindEnv("database.url", "DATABASE_URL")
	_ = viper.BindEnv("http.jwt.secret", "JWT_SECRET")
	_ = viper.BindEnv("http.agent_token", "AGENT_TOKEN")

	viper.SetDefault("http.port", 8080)
	viper.SetDefault("artifacts.dir", "./screenshots")
	viper.SetDefault("timezone", "Asia/Shanghai")

	if err := viper.ReadInConfig(); err != nil {
		panic(err)
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		panic(err)
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
