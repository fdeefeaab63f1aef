package config

import (
	"fmt"
	"os"
	"time"

	"clicker-quiz-service/internal/domain"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port           string   `yaml:"port"`
		AllowedOrigins []string `yaml:"allowedOrigins"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"log"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Paper struct {
		TTL  string `yaml:"ttl"`
		File string `yaml:"file"`
	} `yaml:"paper"`
	Bridge struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"bridge"`
	Submission struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"submission"`
	NATS struct {
		URL     string `yaml:"url"`
		Subject string `yaml:"subject"`
	} `yaml:"nats"`
	Session struct {
		Retention string `yaml:"retention"`
	} `yaml:"session"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

type papersFile struct {
	Papers []domain.Paper `yaml:"papers"`
}

// LoadPapers reads question papers from a YAML file, keyed by paper id.
func LoadPapers(path string) (map[string]domain.Paper, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file papersFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse papers file: %w", err)
	}
	papers := make(map[string]domain.Paper, len(file.Papers))
	for _, p := range file.Papers {
		if p.ID == "" {
			return nil, fmt.Errorf("parse papers file: paper without id")
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("parse papers file: %w", err)
		}
		papers[p.ID] = p
	}
	return papers, nil
}
