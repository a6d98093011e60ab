package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/dkeye/voicegate/internal/domain"
)

type Config struct {
	Mode       string        `mapstructure:"mode" validate:"oneof=debug release test"`
	Port       int           `mapstructure:"port" validate:"min=1,max=65535"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit" validate:"min=0"`
	PingPeriod time.Duration `mapstructure:"ping_period" validate:"gt=0"`
	Secret     string        `mapstructure:"secret" validate:"required"`
	// AdminToken guards the operator endpoints; empty disables them.
	AdminToken string        `mapstructure:"admin_token" validate:"omitempty,min=16"`

	ServerName  string `mapstructure:"server_name" validate:"required"`
	ServerToken string `mapstructure:"server_token" validate:"required"`
	SFUHost     string `mapstructure:"sfu_host" validate:"required"`

	ConnectTimeout       time.Duration `mapstructure:"connect_timeout" validate:"gt=0"`
	ReconnectBaseDelay   time.Duration `mapstructure:"reconnect_base_delay" validate:"gt=0"`
	ReconnectMaxDelay    time.Duration `mapstructure:"reconnect_max_delay" validate:"gtefield=ReconnectBaseDelay"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts" validate:"min=0"`
	KeepAliveInterval    time.Duration `mapstructure:"keep_alive_interval" validate:"gt=0"`
	TokenTTL             time.Duration `mapstructure:"token_ttl" validate:"gt=0"`

	JoinRateLimit int `mapstructure:"join_rate_limit" validate:"min=1"`
	JoinRateBurst int `mapstructure:"join_rate_burst" validate:"min=1"`
}

// identity keys may also come from the bare variables the SFU docs use
var envAliases = map[string][]string{
	"server_name":  {"VOICE_SERVER_NAME", "SERVER_NAME"},
	"server_token": {"VOICE_SERVER_TOKEN", "SERVER_TOKEN"},
	"sfu_host":     {"VOICE_SFU_HOST", "SFU_HOST"},
}

// Load reads config/config.<CONFIG_ENV>.yaml, then applies VOICE_* overrides.
// A missing or invalid identity is reported as domain.ErrConfiguration.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "change-me")
	v.SetDefault("admin_token", "")
	v.SetDefault("connect_timeout", "10s")
	v.SetDefault("reconnect_base_delay", "1s")
	v.SetDefault("reconnect_max_delay", "30s")
	v.SetDefault("max_reconnect_attempts", 10)
	v.SetDefault("keep_alive_interval", "15s")
	v.SetDefault("token_ttl", "10m")
	v.SetDefault("join_rate_limit", 20)
	v.SetDefault("join_rate_burst", 5)

	v.SetEnvPrefix("VOICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range envAliases {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", domain.ErrConfiguration, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("server_name", cfg.ServerName).
		Str("sfu_host", cfg.SFUHost).
		Msg("config ready")
	return &cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
		}
		return fmt.Errorf("%w: invalid %s", domain.ErrConfiguration, strings.Join(fields, ", "))
	}
	return fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
}
