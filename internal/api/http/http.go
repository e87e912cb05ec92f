package http

import "github.com/pocketops/checkin-bridge/internal/auth"

type Config struct {
	Port       uint           `mapstructure:"port"`
	JWT        auth.JWTConfig `mapstructure:"jwt"`
	AgentToken string         `mapstructure:"agent_token"`
}
