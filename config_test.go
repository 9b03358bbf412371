package main

import (
	"strings"
	"testing"

	"github.com/BurntSushi/toml"
)

func TestLoadConfig(t *testing.T) {
	configData := `
        [server]
        hostname = "example.com"
        scheme = "https"

        [store.postgres]
        dsn = "postgres://localhost/outpost"

        [delivery]
        workers = 8
        `

	config := defaultConfig()
	r := strings.NewReader(configData)
	_, err := toml.DecodeReader(r, &config)
	if err != nil {
		t.Errorf("could not parse example config properly")
	}

	if err := ValidateConfig(config); err != nil {
		t.Errorf("could not validate config: %v", err)
	}

	if config.Server.Hostname != "example.com" {
		t.Errorf("config hostname expected example.com got: %s", config.Server.Hostname)
	}
	if config.Server.Scheme != "https" {
		t.Errorf("config scheme expected https got: %s", config.Server.Scheme)
	}
	if config.Store.Postgres.DSN != "postgres://localhost/outpost" {
		t.Errorf("config postgres dsn expected postgres://localhost/outpost got: %s", config.Store.Postgres.DSN)
	}
	if config.Delivery.Workers != 8 {
		t.Errorf("config delivery workers expected 8 got: %d", config.Delivery.Workers)
	}
	if config.BaseURL() != "https://example.com" {
		t.Errorf("unexpected base url: %s", config.BaseURL())
	}
}

func TestValidateConfigRejectsMissingHostname(t *testing.T) {
	conf := defaultConfig()
	conf.Server.Scheme = "https"

	if err := ValidateConfig(conf); err == nil {
		t.Error("expected validation error for missing hostname")
	}
}

func TestValidateConfigRejectsZeroWorkers(t *testing.T) {
	conf := defaultConfig()
	conf.Server.Scheme = "https"
	conf.Server.Hostname = "example.com"
	conf.Delivery.Workers = 0

	if err := ValidateConfig(conf); err == nil {
		t.Error("expected validation error for zero delivery workers")
	}
}
