package main

import (
	"log"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"crimefeed/internal/geo"
)

type Config struct {
	// CitizenRIMS url prefixes to poll, e.g. "atherton".
	Agencies        []string `yaml:"agencies"`
	PaloAltoEnabled bool     `yaml:"palo_alto_enabled"`
	DaysBack        int      `yaml:"days_back"`
	CitizenRIMSBase string   `yaml:"citizenrims_base"`
	PaloAltoBase    string   `yaml:"palo_alto_base"`

	BoundaryName string      `yaml:"boundary_name"`
	Boundary     []geo.Point `yaml:"boundary"`
	MapURL       string      `yaml:"map_url"`

	DataDir string `yaml:"data_dir"`
	DBPath  string `yaml:"db_path"`

	SMTPHost        string   `yaml:"smtp_host"`
	SMTPPort        int      `yaml:"smtp_port"`
	SMTPUser        string   `yaml:"smtp_user"`
	SMTPPassword    string   `yaml:"smtp_password"`
	AlertFrom       string   `yaml:"alert_from"`
	AlertRecipients []string `yaml:"alert_recipients"`

	SlackBotToken  string `yaml:"slack_bot_token"`
	SlackChannelID string `yaml:"slack_channel_id"`

	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	LLMModel        string `yaml:"llm_model"`

	// Standard 5-field cron expression; empty means a single run.
	FetchSchedule string `yaml:"fetch_schedule"`
	ServeAddr     string `yaml:"serve_addr"`
}

// menloOaksBoundary is the neighborhood the feed was built for and remains
// the default when no boundary is configured.
var menloOaksBoundary = []geo.Point{
	{Lat: 37.4717, Lng: -122.1680},
	{Lat: 37.4698, Lng: -122.1618},
	{Lat: 37.4644, Lng: -122.1628},
	{Lat: 37.4627, Lng: -122.1698},
	{Lat: 37.4611, Lng: -122.1732},
	{Lat: 37.4686, Lng: -122.1753},
}

func LoadConfig() Config {
	var cfg Config

	// Load from config.yaml if it exists
	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			log.Fatalf("Error parsing %s: %v", configPath, err)
		}
		log.Printf("Loaded config from %s", configPath)
	}

	// Env vars override YAML values
	envOverride(&cfg.CitizenRIMSBase, "CITIZENRIMS_BASE")
	envOverride(&cfg.PaloAltoBase, "PALO_ALTO_BASE")
	envOverrideInt(&cfg.DaysBack, "DAYS_BACK")
	envOverride(&cfg.BoundaryName, "BOUNDARY_NAME")
	envOverride(&cfg.MapURL, "MAP_URL")
	envOverride(&cfg.DataDir, "DATA_DIR")
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.SMTPHost, "SMTP_HOST")
	envOverrideInt(&cfg.SMTPPort, "SMTP_PORT")
	envOverride(&cfg.SMTPUser, "SMTP_USER")
	envOverride(&cfg.SMTPPassword, "SMTP_PASSWORD")
	envOverride(&cfg.AlertFrom, "ALERT_FROM")
	envOverrideList(&cfg.AlertRecipients, "ALERT_RECIPIENTS")
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.SlackChannelID, "SLACK_CHANNEL_ID")
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.LLMModel, "LLM_MODEL")
	envOverride(&cfg.FetchSchedule, "FETCH_SCHEDULE")
	envOverride(&cfg.ServeAddr, "SERVE_ADDR")
	envOverrideList(&cfg.Agencies, "AGENCIES")
	if v := os.Getenv("PALO_ALTO_ENABLED"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			log.Fatalf("invalid PALO_ALTO_ENABLED '%s': %v", v, err)
		}
		cfg.PaloAltoEnabled = parsed
	}

	// Defaults
	if len(cfg.Agencies) == 0 && !cfg.PaloAltoEnabled {
		cfg.Agencies = []string{"atherton"}
		cfg.PaloAltoEnabled = true
	}
	if cfg.DaysBack == 0 {
		cfg.DaysBack = 30
	}
	if cfg.BoundaryName == "" {
		cfg.BoundaryName = "Menlo Oaks"
	}
	if len(cfg.Boundary) == 0 {
		cfg.Boundary = menloOaksBoundary
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "./data"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./crimefeed.db"
	}
	if cfg.SMTPPort == 0 {
		cfg.SMTPPort = 465
	}
	if cfg.ServeAddr == "" {
		cfg.ServeAddr = ":8080"
	}

	// Validate
	if cfg.DaysBack < 1 {
		log.Fatalf("invalid days_back '%d': must be >= 1", cfg.DaysBack)
	}
	if _, err := geo.NewPolygon(cfg.Boundary); err != nil {
		log.Fatalf("invalid boundary: %v", err)
	}
	if len(cfg.AlertRecipients) > 0 {
		required := map[string]string{
			"smtp_host":     cfg.SMTPHost,
			"smtp_user":     cfg.SMTPUser,
			"smtp_password": cfg.SMTPPassword,
			"alert_from":    cfg.AlertFrom,
		}
		for name, val := range required {
			if val == "" {
				log.Fatalf("Required config '%s' is not set when alert_recipients is configured", name)
			}
		}
	}
	if cfg.SlackChannelID != "" && cfg.SlackBotToken == "" {
		log.Fatalf("slack_bot_token is required when slack_channel_id is set")
	}

	return cfg
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
}

func envOverrideList(field *[]string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = nil
		for _, item := range strings.Split(val, ",") {
			item = strings.TrimSpace(item)
			if item != "" {
				*field = append(*field, item)
			}
		}
	}
}
