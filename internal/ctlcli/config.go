package ctlcli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// cfgFile is set by the root command's --config flag, if any.
var cfgFile string

// Config holds the CLI's persisted settings.
type Config struct {
	ServerURL   string `mapstructure:"server_url"`
	Token       string `mapstructure:"token"`
	WatchFolder string `mapstructure:"watch_folder"`
}

// InitConfig loads ~/.mediaorcctl.yaml, following teacher's
// read-silently-if-absent convention.
func InitConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".mediaorcctl")
	}

	viper.AutomaticEnv()
	_ = viper.ReadInConfig()
}

// SaveConfig persists non-empty fields to ~/.mediaorcctl.yaml (or
// cfgFile, if set) and returns the path written.
func SaveConfig(serverURL, token, watchFolder string) (string, error) {
	if serverURL != "" {
		viper.Set("server_url", serverURL)
	}
	if token != "" {
		viper.Set("token", token)
	}
	if watchFolder != "" {
		viper.Set("watch_folder", watchFolder)
	}

	path := cfgFile
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, ".mediaorcctl.yaml")
	}
	if err := viper.WriteConfigAs(path); err != nil {
		return "", err
	}
	return path, nil
}

// GetConfig returns the CLI's current settings.
func GetConfig() *Config {
	return &Config{
		ServerURL:   viper.GetString("server_url"),
		Token:       viper.GetString("token"),
		WatchFolder: viper.GetString("watch_folder"),
	}
}
