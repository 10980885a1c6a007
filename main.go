package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"bitbacktest/api"
	"bitbacktest/config"
	"bitbacktest/logger"
)

// ConfigFile 工作目录下的 config.json
type ConfigFile struct {
	APIServerPort int    `json:"api_server_port"`
	RunLogDir     string `json:"run_log_dir"`
	StateDBPath   string `json:"state_db_path"`
}

func loadConfigFile() (*ConfigFile, error) {
	data, err := os.ReadFile("config.json")
	if err != nil {
		return nil, fmt.Errorf("read config.json: %w", err)
	}
	var cfg ConfigFile
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config.json: %w", err)
	}
	return &cfg, nil
}

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	settings := config.Load()

	cfg, err := loadConfigFile()
	if err != nil {
		logrus.WithError(err).Warn("config.json not loaded, using defaults")
		cfg = &ConfigFile{}
	}
	if cfg.APIServerPort == 0 {
		cfg.APIServerPort = 8080
	}
	if cfg.RunLogDir == "" {
		cfg.RunLogDir = "run_logs"
	}

	runLogger := logger.NewRunLogger(cfg.RunLogDir)
	srv := api.NewServer(settings, runLogger, cfg.APIServerPort)
	if err := srv.Run(); err != nil {
		logrus.WithError(err).Fatal("api server exited")
	}
}
