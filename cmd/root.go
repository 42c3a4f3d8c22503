package cmd

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/jobpilot/internal/auth"
	"github.com/spigell/jobpilot/internal/logger"
	"github.com/spigell/jobpilot/internal/secrets"
)

const (
	app           = "jobpilot"
	envPrefix     = "JOBPILOT"
	defaultServer = "http://localhost:8000"
)

type Config struct {
	Server    string        `mapstructure:"server" validate:"required,url"`
	UserAgent string        `mapstructure:"user-agent"`
	TokenFile string        `mapstructure:"token-file"`
	Token     string        `mapstructure:"token"`
	Stream    *StreamConfig `mapstructure:"stream"`
}

type StreamConfig struct {
	HandshakeTimeout time.Duration `mapstructure:"handshake-timeout" validate:"gte=0"`
	WriteTimeout     time.Duration `mapstructure:"write-timeout" validate:"gte=0"`
	ReadLimit        int64         `mapstructure:"read-limit" validate:"gte=0"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "jobpilot submits a resume to the job portal and follows ranking, tailoring and applications live",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	for key, env := range map[string]string{
		"token-file": envPrefix + "_TOKEN_FILE",
		"token":      envPrefix + "_TOKEN",
		"server":     envPrefix + "_SERVER",
		"user-agent": envPrefix + "_USER_AGENT",
	} {
		if err := viper.BindEnv(key, env); err != nil {
			log.Fatalf("binding %s environment variable: %v", env, err)
		}
	}
	viper.SetDefault("server", defaultServer)

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is jobpilot.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")
	rootCmd.PersistentFlags().StringP("server", "s", "", "portal base url (default is "+defaultServer+")")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))
}

func initConfig() {
	if versionCmd.CalledAs() != "" {
		return
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// The config file is optional unless given explicitly; env and flags are enough to run.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config *Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}
	if config == nil {
		config = &Config{}
	}
	if config.Stream == nil {
		config.Stream = &StreamConfig{}
	}
	config.Server = strings.TrimRight(strings.TrimSpace(config.Server), "/")

	if err := validator.New().Struct(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

// setup builds the logger writing to output and loads the config. Failures end the process.
func setup(output string) (*zap.Logger, *Config) {
	logger, err := logger.New(logger.Options{
		JSON:   viper.GetBool("json"),
		Debug:  viper.GetBool("debug"),
		Output: output,
	})
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Debug("starting with config",
		zap.String("server", config.Server),
		zap.Bool("token-file set", config.TokenFile != ""),
		zap.Bool("token set", config.Token != ""),
	)

	return logger, config
}

func tokenSource(config *Config) auth.SecretTokenSource {
	return auth.SecretTokenSource{Source: secrets.Source{
		Name:  "portal token",
		File:  config.TokenFile,
		Value: config.Token,
		Field: "access_token",
	}}
}
