// Package config loads typed configuration structs from environment
// variables.
//
// It wraps github.com/joho/godotenv (optional .env files) and
// github.com/caarlos0/env/v11 (struct tag parsing). Every package in this
// module exposes a Config struct with `env` and `envDefault` tags; Load fills
// one and caches the result per type so repeated calls are cheap.
//
//	var cfg tracking.Config
//	config.MustLoad(&cfg)
//
// Tests that mutate the environment should call ResetCache between cases.
package config
