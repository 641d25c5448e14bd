package sys

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Token         string `env:"DISCORD_TOKEN"`
	GuildID       string `env:"GUILD_ID"`
	DatabasePath  string `env:"DATABASE_PATH"`
	Silent        bool   `env:"SILENT"`
	YtdlpPath     string `env:"YTDLP_PATH" envDefault:"yt-dlp"`
	LocalAudioDir string `env:"LOCAL_AUDIO_DIR"`
	CookiesFile   string `env:"YTDLP_COOKIES"`
	YoutubeProxy  string `env:"YOUTUBE_PROXY"`

	ResolveTimeout time.Duration `env:"RESOLVE_TIMEOUT" envDefault:"30s"`
	ProbeTimeout   time.Duration `env:"PROBE_TIMEOUT" envDefault:"5s"`
	ResolveRate    float64       `env:"RESOLVE_RATE" envDefault:"2"`
}

// LoadConfig reads .env (if present) and the process environment.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf(MsgConfigFailedToLoad, err)
	}

	if cfg.DatabasePath == "" {
		folder := "."
		if info, err := os.Stat("data"); err == nil && info.IsDir() {
			folder = "./data"
		}
		cfg.DatabasePath = filepath.Join(folder, GetProjectName()+".db")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Silent {
		SetSilentMode(true)
	}
	return cfg, nil
}

// Validate checks the token, the dev guild and that every configured path
// exists with the expected kind.
func (c *Config) Validate() error {
	if c.Token == "" {
		return fmt.Errorf(MsgConfigMissingToken)
	}
	if c.GuildID != "" && (len(c.GuildID) < 17 || len(c.GuildID) > 20) {
		return fmt.Errorf(MsgConfigInvalidGuild)
	}

	if strings.ContainsRune(c.YtdlpPath, os.PathSeparator) || strings.Contains(c.YtdlpPath, "/") {
		if err := requireFile("YTDLP_PATH", c.YtdlpPath); err != nil {
			return err
		}
	} else if _, err := exec.LookPath(c.YtdlpPath); err != nil {
		return fmt.Errorf(MsgConfigPathMissing, "YTDLP_PATH", c.YtdlpPath)
	}

	if c.LocalAudioDir != "" {
		info, err := os.Stat(c.LocalAudioDir)
		if err != nil {
			return fmt.Errorf(MsgConfigPathMissing, "LOCAL_AUDIO_DIR", c.LocalAudioDir)
		}
		if !info.IsDir() {
			return fmt.Errorf(MsgConfigPathNotDir, "LOCAL_AUDIO_DIR", c.LocalAudioDir)
		}
	}

	if c.CookiesFile != "" {
		if err := requireFile("YTDLP_COOKIES", c.CookiesFile); err != nil {
			return err
		}
	}
	return nil
}

func requireFile(name, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf(MsgConfigPathMissing, name, path)
	}
	if info.IsDir() {
		return fmt.Errorf(MsgConfigPathNotFile, name, path)
	}
	return nil
}

// GetProjectName derives a display name from the executable, falling back to
// the module path when running under go run.
func GetProjectName() string {
	projectName := "bot"
	exePath, err := os.Executable()
	if err != nil {
		return projectName
	}

	projectName = strings.TrimSuffix(filepath.Base(exePath), ".exe")
	if projectName == "main" || strings.HasPrefix(projectName, "go_build_") {
		if modData, err := os.ReadFile("go.mod"); err == nil {
			lines := strings.Split(string(modData), "\n")
			if len(lines) > 0 && strings.HasPrefix(lines[0], "module ") {
				parts := strings.Split(lines[0], "/")
				projectName = strings.TrimSpace(parts[len(parts)-1])
			}
		}
	}
	return projectName
}
