package utils

import (
	"os"
)

const (
	LogLevel   = "LOG_LEVEL"
	ConfigPath = "MLSPEC_CONFIG"
)

func getFromEnv(varName string) string {
	return os.Getenv(varName)
}

func GetLogLevel() string {
	return getFromEnv(LogLevel)
}

func GetConfigPath() string {
	return getFromEnv(ConfigPath)
}
