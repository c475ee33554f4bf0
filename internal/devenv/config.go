package devenv

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config は開発環境コマンドの設定を保持する。
type Config struct {
	PostgresWait         time.Duration `env:"QUESO_POSTGRES_WAIT" envDefault:"5s"`
	PostgresWaitInterval time.Duration `env:"QUESO_POSTGRES_WAIT_INTERVAL" envDefault:"1s"`
	BackendPort          int           `env:"QUESO_BACKEND_PORT" envDefault:"3000"`
	FrontendPort         int           `env:"QUESO_FRONTEND_PORT" envDefault:"5173"`
	PostgresPort         int           `env:"QUESO_POSTGRES_PORT" envDefault:"5432"`
	ComposeFile          string        `env:"QUESO_COMPOSE_FILE" envDefault:"docker-compose.yml"`
	ServerDir            string        `env:"QUESO_SERVER_DIR" envDefault:"."`
	UIDir                string        `env:"QUESO_UI_DIR" envDefault:"ui"`
}

// LoadConfig は環境変数から設定を読み込む。
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.PostgresWaitInterval <= 0 {
		cfg.PostgresWaitInterval = time.Second
	}
	return cfg, nil
}

// ProjectPaths は開発環境が参照するパスの集合。
type ProjectPaths struct {
	Root        string
	ComposeFile string
	Server      string
	UI          string
}

// PathsFor はプロジェクトルートと設定からパスを組み立てる。
func PathsFor(root string, cfg Config) ProjectPaths {
	return ProjectPaths{
		Root:        root,
		ComposeFile: resolve(root, cfg.ComposeFile),
		Server:      resolve(root, cfg.ServerDir),
		UI:          resolve(root, cfg.UIDir),
	}
}

func resolve(root, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}

// ErrNoProjectRoot は .git を含むディレクトリが見つからない場合のエラー。
var ErrNoProjectRoot = errors.New("project root not found (no .git directory)")

// FindProjectRoot はstartから親ディレクトリを辿り、.git を含む最初のディレクトリを返す。
func FindProjectRoot(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", start, err)
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrNoProjectRoot
		}
		dir = parent
	}
}
