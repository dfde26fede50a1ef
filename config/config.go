package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

type SysConfig struct {
	Appid    string `yaml:"appid" json:"appid"`
	Location string `yaml:"location" json:"location"`
	Workdir  string `yaml:"workdir" json:"workdir"`
	Debug    bool   `yaml:"debug" json:"debug"`
}

type LogConfig struct {
	Mode       string `yaml:"mode" json:"mode"`
	FileEnable bool   `yaml:"file_enable" json:"file_enable"`
	Filename   string `yaml:"filename" json:"filename"`
}

type DBConfig struct {
	Type     string `yaml:"type" json:"type"`
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	Name     string `yaml:"name" json:"name"`
	User     string `yaml:"user" json:"user"`
	Passwd   string `yaml:"passwd" json:"passwd"`
	MaxConn  int    `yaml:"max_conn" json:"max_conn"`
	IdleConn int    `yaml:"idle_conn" json:"idle_conn"`
	Debug    bool   `yaml:"debug" json:"debug"`
}

type WebConfig struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`
}

// DispatcherConfig carries process-level dispatch engine knobs. Per-tenant
// throttle settings live in the database, not here.
type DispatcherConfig struct {
	ScanInterval   string `yaml:"scan_interval" json:"scan_interval"`
	FanoutWorkers  int    `yaml:"fanout_workers" json:"fanout_workers"`
	PrepareWorkers int    `yaml:"prepare_workers" json:"prepare_workers"`
	SendWorkers    int    `yaml:"send_workers" json:"send_workers"`
}

type AppConfig struct {
	System     SysConfig        `yaml:"system" json:"system"`
	Logger     LogConfig        `yaml:"logger" json:"logger"`
	Web        WebConfig        `yaml:"web" json:"web"`
	Database   DBConfig         `yaml:"database" json:"database"`
	Dispatcher DispatcherConfig `yaml:"dispatcher" json:"dispatcher"`
}

var DefaultAppConfig = &AppConfig{
	System: SysConfig{
		Appid:    "zapcampaigns",
		Location: "America/Sao_Paulo",
		Workdir:  "/var/zapcampaigns",
		Debug:    true,
	},
	Logger: LogConfig{
		Mode:       "development",
		FileEnable: true,
		Filename:   "/var/zapcampaigns/zapcampaigns.log",
	},
	Web: WebConfig{
		Host: "0.0.0.0",
		Port: 1816,
	},
	Database: DBConfig{
		Type:     "postgres",
		Host:     "127.0.0.1",
		Port:     5432,
		Name:     "zapcampaigns",
		User:     "postgres",
		Passwd:   "",
		MaxConn:  100,
		IdleConn: 10,
	},
	Dispatcher: DispatcherConfig{
		ScanInterval:   "@every 20s",
		FanoutWorkers:  4,
		PrepareWorkers: 16,
		SendWorkers:    16,
	},
}

func setEnvValue(name string, val *string) {
	if evalue, ok := os.LookupEnv(name); ok {
		*val = evalue
	}
}

func setEnvBoolValue(name string, val *bool) {
	if evalue, ok := os.LookupEnv(name); ok {
		*val = evalue == "true" || evalue == "1" || evalue == "on"
	}
}

// LoadConfig loads the YAML configuration file, falling back to defaults
// when the file is absent, then applies environment overrides.
func LoadConfig(cfile string) *AppConfig {
	if cfile == "" {
		cfile = "zapcampaigns.yml"
	}
	cfg := DefaultAppConfig
	if data, err := os.ReadFile(cfile); err == nil {
		cfg = new(AppConfig)
		if err := yaml.Unmarshal(data, cfg); err != nil {
			panic(err)
		}
	}

	setEnvValue("ZAPCAMP_SYSTEM_WORKDIR", &cfg.System.Workdir)
	setEnvValue("ZAPCAMP_SYSTEM_LOCATION", &cfg.System.Location)
	setEnvBoolValue("ZAPCAMP_SYSTEM_DEBUG", &cfg.System.Debug)
	setEnvValue("ZAPCAMP_DB_HOST", &cfg.Database.Host)
	setEnvValue("ZAPCAMP_DB_NAME", &cfg.Database.Name)
	setEnvValue("ZAPCAMP_DB_USER", &cfg.Database.User)
	setEnvValue("ZAPCAMP_DB_PWD", &cfg.Database.Passwd)
	setEnvValue("ZAPCAMP_LOGGER_MODE", &cfg.Logger.Mode)

	_ = os.MkdirAll(filepath.Join(cfg.System.Workdir, "data"), 0o755)
	return cfg
}
