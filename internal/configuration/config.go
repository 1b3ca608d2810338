package configuration

import (
	"encoding/json"
	"log"
	"os"

	"github.com/joho/godotenv"
)

type MongoConfig struct {
	Uri      string `json:"uri"`
	Database string `json:"database"`
}

type MediaConfig struct {
	CloudinaryURL string `json:"cloudinary_url"`
	Folder        string `json:"folder"`
}

type SyncConfig struct {
	TailSize        int64 `json:"tail_size"`
	PageSize        int64 `json:"page_size"`
	AttachmentCap   int   `json:"attachment_cap"`
	LookupTimeoutMs int   `json:"lookup_timeout_ms"`
}

type ServerConfig struct {
	AppPort    int `json:"app_port"`
	SocketPort int `json:"socket_port"`
}

type Config struct {
	ChatDatabase MongoConfig  `json:"mongo"`
	Media        MediaConfig  `json:"media"`
	Sync         SyncConfig   `json:"sync"`
	Server       ServerConfig `json:"server"`
}

// LoadConfig reads the JSON config file, then lets the environment
// override the secret-bearing values so deployments never have to put
// credentials in the file.
func LoadConfig(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, reading from system environment")
	}

	file, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	var config Config
	err = json.Unmarshal(file, &config)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("MONGO_URI"); v != "" {
		config.ChatDatabase.Uri = v
	}
	if v := os.Getenv("CLOUDINARY_URL"); v != "" {
		config.Media.CloudinaryURL = v
	}

	config.applyDefaults()

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Sync.TailSize <= 0 {
		c.Sync.TailSize = 50
	}
	if c.Sync.PageSize <= 0 {
		c.Sync.PageSize = 50
	}
	if c.Sync.AttachmentCap <= 0 {
		c.Sync.AttachmentCap = 10
	}
	if c.Sync.LookupTimeoutMs <= 0 {
		c.Sync.LookupTimeoutMs = 3000
	}
	if c.Server.AppPort == 0 {
		c.Server.AppPort = 8080
	}
	if c.Server.SocketPort == 0 {
		c.Server.SocketPort = 8081
	}
}
