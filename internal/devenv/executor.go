package devenv

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// CommandExecutor は外部コマンドの実行を抽象化する。
// テストでは呼び出しを記録する実装に差し替える。
type CommandExecutor interface {
	// Execute はコマンドを完了まで実行する。
	Execute(ctx context.Context, name string, args []string, dir string) error
	// Spawn はコマンドを起動し、完了を待たずに返る。
	Spawn(ctx context.Context, name string, args []string, dir string) error
	// Output はコマンドを実行し、標準出力を返す。
	Output(ctx context.Context, name string, args []string, dir string) ([]byte, error)
}

// ExecExecutor は os/exec によるCommandExecutorの実装。
type ExecExecutor struct{}

// Execute はコマンドを実行し、標準出力と標準エラーを端末に流す。
func (ExecExecutor) Execute(ctx context.Context, name string, args []string, dir string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w", commandLine(name, args), err)
	}
	return nil
}

// Spawn はコマンドをバックグラウンドで起動する。
// 親のcontextが終了しても子プロセスは残る。
func (ExecExecutor) Spawn(_ context.Context, name string, args []string, dir string) error {
	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%s: %w", commandLine(name, args), err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

// Output はコマンドの標準出力を返す。
func (ExecExecutor) Output(ctx context.Context, name string, args []string, dir string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return out, fmt.Errorf("%s: %w", commandLine(name, args), err)
	}
	return out, nil
}

func commandLine(name string, args []string) string {
	return strings.TrimSpace(name + " " + strings.Join(args, " "))
}
