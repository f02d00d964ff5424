package configuration

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
	validator "gopkg.in/go-playground/validator.v9"

	"github.com/signato/signato-auth/logging"
	"github.com/signato/signato-auth/pkg/services/identity"
)

// RedisConfiguration selects the redis backend. An empty Address means the
// in-memory store is used instead.
type RedisConfiguration struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// IdentityConfiguration configures the external visual identity service.
type IdentityConfiguration struct {
	ServiceURL         string `mapstructure:"service_url"`
	Username           string `mapstructure:"username"`
	EncryptedPassword  string `mapstructure:"encrypted_password"`
	SecretKey          string `mapstructure:"secret_key"`
	SuccessRedirectURL string `mapstructure:"success_redirect_url"`
	ErrorRedirectURL   string `mapstructure:"error_redirect_url"`
	DefaultLanguage    string `mapstructure:"default_language"`
}

// RelayConfiguration tunes the signing relay hub.
type RelayConfiguration struct {
	SendBuffer       int `mapstructure:"send_buffer"`
	RoomTTLMinutes   int `mapstructure:"room_ttl_minutes"`
	LongPollWaitSecs int `mapstructure:"long_poll_wait_seconds"`
}

// ServiceConfiguration is the full server configuration.
type ServiceConfiguration struct {
	HTTPAddress      string                `mapstructure:"http_address" validate:"required"`
	PublicURL        string                `mapstructure:"public_url" validate:"required"`
	URIScheme        string                `mapstructure:"uri_scheme" validate:"required"`
	AssertionSecret  string                `mapstructure:"assertion_secret" validate:"required"`
	OtpExpiryMinutes int                   `mapstructure:"otp_expiry_minutes" validate:"min=0"`
	MessageTemplate  string                `mapstructure:"message_template"`
	Verbosity        string                `mapstructure:"verbosity"`
	Redis            RedisConfiguration    `mapstructure:"redis"`
	Identity         IdentityConfiguration `mapstructure:"identity"`
	Relay            RelayConfiguration    `mapstructure:"relay"`
}

// LoadConfigFromFile reads <path>/<filename>.yaml into a validated configuration.
func LoadConfigFromFile(path, filename string) (*ServiceConfiguration, error) {
	config := ServiceConfiguration{}
	config.SetDefaults()
	if err := config.LoadFromFile(path, filename); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (config *ServiceConfiguration) LoadFromFile(path, filename string) error {
	logging.Log().Infof("Loading config from %s/%s.yaml", path, filename)
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName(filename)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return errors.Wrap(err, "could not read config file")
	}
	if err := v.Unmarshal(config); err != nil {
		return errors.Wrap(err, "could not unmarshal config file")
	}
	return nil
}

func (config *ServiceConfiguration) SetDefaults() {
	config.HTTPAddress = "localhost:3000"
	config.PublicURL = "http://localhost:3000"
	config.URIScheme = "signato"
	config.OtpExpiryMinutes = 10
	config.Verbosity = "info"
	config.Relay.SendBuffer = 16
	config.Relay.RoomTTLMinutes = 10
	config.Relay.LongPollWaitSecs = 25
	config.Identity.DefaultLanguage = "en"
}

func (config *ServiceConfiguration) Validate() error {
	if err := validator.New().Struct(config); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// IdentityConfig converts the raw file values into the broker configuration.
func (config *ServiceConfiguration) IdentityConfig() identity.Config {
	return identity.Config{
		ServiceURL:         config.Identity.ServiceURL,
		Username:           config.Identity.Username,
		EncryptedPassword:  config.Identity.EncryptedPassword,
		SecretKey:          []byte(config.Identity.SecretKey),
		SuccessRedirectURL: config.Identity.SuccessRedirectURL,
		ErrorRedirectURL:   config.Identity.ErrorRedirectURL,
		DefaultLanguage:    config.Identity.DefaultLanguage,
	}
}
