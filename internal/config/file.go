package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml"
	"gopkg.in/yaml.v3"
)

// File is the on-disk form of the settings the CLI accepts with --config.
// Empty fields leave the environment value untouched.
type File struct {
	Backend     string `toml:"backend" yaml:"backend" json:"backend"`
	SQLitePath  string `toml:"sqlite_path" yaml:"sqlite_path" json:"sqlite_path"`
	DatabaseURL string `toml:"database_url" yaml:"database_url" json:"database_url"`
	LogLevel    string `toml:"log_level" yaml:"log_level" json:"log_level"`

	AMQP struct {
		URL      string `toml:"url" yaml:"url" json:"url"`
		Exchange string `toml:"exchange" yaml:"exchange" json:"exchange"`
		Queue    string `toml:"queue" yaml:"queue" json:"queue"`
	} `toml:"amqp" yaml:"amqp" json:"amqp"`

	MQTT struct {
		Broker      string `toml:"broker" yaml:"broker" json:"broker"`
		ClientID    string `toml:"client_id" yaml:"client_id" json:"client_id"`
		TopicPrefix string `toml:"topic_prefix" yaml:"topic_prefix" json:"topic_prefix"`
		Interval    string `toml:"interval" yaml:"interval" json:"interval"`
	} `toml:"mqtt" yaml:"mqtt" json:"mqtt"`

	Export struct {
		Bucket  string `toml:"bucket" yaml:"bucket" json:"bucket"`
		Prefix  string `toml:"prefix" yaml:"prefix" json:"prefix"`
		Profile string `toml:"profile" yaml:"profile" json:"profile"`
		Region  string `toml:"region" yaml:"region" json:"region"`
	} `toml:"export" yaml:"export" json:"export"`
}

// LoadFile reads a TOML, YAML or JSON file, chosen by extension.
func LoadFile(path string) (*File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("error accessing config file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory, not a file", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var f File
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if err := toml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("error parsing TOML file: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("error parsing YAML file: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("error parsing JSON file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}
	return &f, nil
}

// Apply overlays the non-empty fields of f onto c.
func (c *Config) Apply(f *File) error {
	if f == nil {
		return nil
	}
	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	set(&c.DataBackend, f.Backend)
	set(&c.SQLiteDBPath, f.SQLitePath)
	set(&c.DatabaseURL, f.DatabaseURL)
	set(&c.LogLevel, f.LogLevel)

	set(&c.AMQPURL, f.AMQP.URL)
	set(&c.AMQPExchange, f.AMQP.Exchange)
	set(&c.AMQPQueue, f.AMQP.Queue)

	set(&c.MQTTBroker, f.MQTT.Broker)
	set(&c.MQTTClientID, f.MQTT.ClientID)
	set(&c.MQTTTopicPrefix, f.MQTT.TopicPrefix)
	if f.MQTT.Interval != "" {
		d, err := time.ParseDuration(f.MQTT.Interval)
		if err != nil {
			return fmt.Errorf("invalid mqtt interval %q: %w", f.MQTT.Interval, err)
		}
		c.ReportInterval = d
	}

	set(&c.S3Bucket, f.Export.Bucket)
	set(&c.S3Prefix, f.Export.Prefix)
	set(&c.AWSProfile, f.Export.Profile)
	set(&c.AWSRegion, f.Export.Region)
	return nil
}
