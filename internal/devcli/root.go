// Package devcli は開発用CLI `queso` のコマンドツリーを提供する。
package devcli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/hitoshi/queso/internal/devenv"
)

// Environment は `queso dev` のサブコマンドが操作する開発環境。
type Environment interface {
	Setup(ctx context.Context) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Clean(ctx context.Context) error
}

// EnvironmentFactory は出力先を受け取りEnvironmentを生成する。
type EnvironmentFactory func(out io.Writer) (Environment, error)

// NewRootCmd は `queso` のルートコマンドを生成する。
func NewRootCmd(factory EnvironmentFactory) *cobra.Command {
	root := &cobra.Command{
		Use:   "queso",
		Short: "Queso development CLI",
		Long: `queso manages the local development environment:
the PostgreSQL container, the API server and the web UI.`,
		SilenceUsage: true,
	}
	root.AddCommand(newDevCmd(factory))
	return root
}

// DefaultEnvironment はカレントディレクトリからプロジェクトルートを探し、
// 実際のコマンドを実行するEnvironmentを生成する。
func DefaultEnvironment(out io.Writer) (Environment, error) {
	cfg, err := devenv.LoadConfig()
	if err != nil {
		return nil, err
	}

	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working directory: %w", err)
	}
	root, err := devenv.FindProjectRoot(wd)
	if err != nil {
		return nil, err
	}

	return devenv.NewManager(devenv.PathsFor(root, cfg), devenv.ExecExecutor{}, cfg, devenv.WithOutput(out)), nil
}

// Execute はルートコマンドを実行する。cmd/queso のmainから呼ばれる。
func Execute() {
	if err := NewRootCmd(DefaultEnvironment).Execute(); err != nil {
		os.Exit(1)
	}
}
