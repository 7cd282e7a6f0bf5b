package config

import (
	"github.com/ilyakaznacheev/cleanenv"
	"log"
	"sync"
)

type Config struct {
	IsDebug  bool   `yaml:"is_debug" env:"CSMS_DEBUG" env-default:"false"`
	TimeZone string `yaml:"time_zone" env-default:"UTC"`
	Listen   struct {
		BindIP   string `yaml:"bind_ip" env-default:"0.0.0.0"`
		Port     string `yaml:"port" env-default:"5000"`
		TLS      bool   `yaml:"tls_enabled" env-default:"false"`
		CertFile string `yaml:"cert_file" env-default:""`
		KeyFile  string `yaml:"key_file" env-default:""`
	} `yaml:"listen"`
	Api struct {
		BindIP   string `yaml:"bind_ip" env-default:"0.0.0.0"`
		Port     string `yaml:"port" env-default:"5001"`
		TLS      bool   `yaml:"tls_enabled" env-default:"false"`
		CertFile string `yaml:"cert_file" env-default:""`
		KeyFile  string `yaml:"key_file" env-default:""`
	} `yaml:"api"`
	Heartbeat struct {
		// interval sent to charge points in BootNotification response, seconds
		Interval int `yaml:"interval" env-default:"600"`
		// watchdog sweep period and silence tolerance, seconds
		CheckPeriod int `yaml:"check_period" env-default:"40"`
		Timeout     int `yaml:"timeout" env-default:"40"`
	} `yaml:"heartbeat"`
	Mongo struct {
		Enabled  bool   `yaml:"enabled" env-default:"false"`
		Host     string `yaml:"host" env-default:"localhost"`
		Port     string `yaml:"port" env-default:"27017"`
		User     string `yaml:"user" env-default:""`
		Password string `yaml:"password" env-default:""`
		Database string `yaml:"database" env-default:"csms"`
	} `yaml:"mongo"`
	Billing struct {
		// fallback price per kWh when no tariff is configured, in currency units
		DefaultRate float64 `yaml:"default_rate" env-default:"0.25"`
		Currency    string  `yaml:"currency" env-default:"EUR"`
	} `yaml:"billing"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" env-default:"false"`
		BindIP  string `yaml:"bind_ip" env-default:"0.0.0.0"`
		Port    string `yaml:"port" env-default:"9100"`
	} `yaml:"metrics"`
	Telegram struct {
		Enabled bool   `yaml:"enabled" env-default:"false"`
		ApiKey  string `yaml:"api_key" env-default:""`
	} `yaml:"telegram"`
}

var instance *Config
var once sync.Once

func GetConfig() (*Config, error) {
	var err error
	once.Do(func() {
		log.Println("reading config")
		instance = &Config{}
		if err = cleanenv.ReadConfig("config.yml", instance); err != nil {
			desc, _ := cleanenv.GetDescription(instance, nil)
			log.Println(desc)
			log.Println(err)
			instance = nil
		}
	})
	return instance, err
}
