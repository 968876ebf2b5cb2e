// Package env loads process environment from a .env file during development.
package env

import (
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// LoadEnv reads .env files into the environment. Variables already set win.
func LoadEnv(files ...string) {
	if err := godotenv.Load(files...); err != nil {
		log.WithField("prefix", "env").Debug("no .env file found, assuming environment variables are set directly")
	}
}
