package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "answer.base_url", typ: kString, env: "ASKCARDS_ANSWER_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Answer.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Answer.BaseURL },
	},
	{
		key: "answer.timeout", typ: kDuration, env: "ASKCARDS_ANSWER_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Answer.Timeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Answer.Timeout },
	},
	{
		key: "server.port", typ: kInt, env: "ASKCARDS_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "storage.data_dir", typ: kString, env: "ASKCARDS_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "ASKCARDS_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "chat.greeting", typ: kString, env: "ASKCARDS_CHAT_GREETING",
		apply:   func(cfg *Config, v any) { cfg.Chat.Greeting = v.(string) },
		extract: func(cfg Config) any { return cfg.Chat.Greeting },
	},
	{
		key: "chat.show_sites", typ: kBool, env: "ASKCARDS_CHAT_SHOW_SITES",
		apply:   func(cfg *Config, v any) { cfg.Chat.ShowSites = v.(bool) },
		extract: func(cfg Config) any { return cfg.Chat.ShowSites },
	},
	{
		key: "export.locale", typ: kString, env: "ASKCARDS_EXPORT_LOCALE",
		apply:   func(cfg *Config, v any) { cfg.Export.Locale = v.(string) },
		extract: func(cfg Config) any { return cfg.Export.Locale },
	},
	{
		key: "export.timezone", typ: kString, env: "ASKCARDS_EXPORT_TIMEZONE",
		apply:   func(cfg *Config, v any) { cfg.Export.Timezone = v.(string) },
		extract: func(cfg Config) any { return cfg.Export.Timezone },
	},
}

func lookupSpec(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetBool(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kDuration:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				d, err := time.ParseDuration(v)
				if err != nil {
					return fmt.Errorf("invalid duration for %s: %w", s.key, err)
				}
				s.apply(cfg, d)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kDuration:
			if d, err := time.ParseDuration(raw); err == nil {
				s.apply(cfg, d)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
