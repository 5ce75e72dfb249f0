package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
)

type Config struct {
	Address           string
	Port              string
	BehindNginx       bool
	TlsCert           string
	TlsKey            string
	Cors              bool
	PrintHttpRequests bool
	LogToFile         bool
	LogLevel          string
	JwtSecret         string
	SnowflakeWorkerID int64

	// SelfContained keeps everything inside the process: sqlite (or memory when
	// DbPath is empty), local pub/sub, local key-value cache and local uploads.
	SelfContained bool
	DbPath        string
	DbDriver      string
	DbUser        string
	DbPassword    string
	DbAddress     string
	DbPort        string
	DbDatabase    string

	RedisAddress  string
	RedisPassword string
	RedisDB       int

	UploadDir   string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3UseSSL    bool
	S3Bucket    string
	S3PublicURL string

	AmqpURL      string
	AmqpExchange string
}

func Default() Config {
	return Config{
		Address:           "localhost",
		Port:              "3000",
		LogLevel:          "info",
		JwtSecret:         "change-me",
		SelfContained:     true,
		DbPath:            "./database.db",
		DbDriver:          "mysql",
		RedisAddress:      "localhost:6379",
		UploadDir:         "./public",
		AmqpExchange:      "flux.audit",
		PrintHttpRequests: false,
	}
}

// Load reads the json config file at path on top of the defaults. A missing file
// is not an error, the defaults are enough for a local self-contained run.
func Load(path string) (Config, error) {
	cfg := Default()

	configFile, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	} else if err != nil {
		return cfg, err
	}
	defer configFile.Close()

	bytes, err := io.ReadAll(configFile)
	if err != nil {
		return cfg, err
	}

	err = json.Unmarshal(bytes, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("parsing %s: %w", path, err)
	}

	if cfg.JwtSecret == "" {
		return cfg, errors.New("JwtSecret can't be empty")
	}

	return cfg, nil
}

func (c Config) IsHttps() bool {
	return c.TlsCert != "" && c.TlsKey != ""
}

func (c Config) ListenAddress() string {
	return fmt.Sprintf("%s:%s", c.Address, c.Port)
}

func (c Config) FullAddress() string {
	protocol := "http"
	if c.IsHttps() {
		protocol = "https"
	}
	return fmt.Sprintf("%s://%s", protocol, c.ListenAddress())
}

// UsesS3 reports whether uploads go to object storage instead of UploadDir.
func (c Config) UsesS3() bool {
	return !c.SelfContained && c.S3Endpoint != ""
}
