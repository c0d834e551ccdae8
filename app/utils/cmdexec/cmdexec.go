package cmdexec

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
)

// Result 单次外部命令执行结果
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner 外部命令执行接口，便于测试替换
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

// ExecRunner 基于 os/exec 的默认实现
type ExecRunner struct{}

// New 创建默认命令执行器
func New() *ExecRunner {
	return &ExecRunner{}
}

// Run 执行命令并捕获 stdout/stderr 和退出码
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}
	return result, nil
}

// LookPath 检查可执行文件是否存在于 PATH
func LookPath(name string) error {
	_, err := exec.LookPath(name)
	return err
}
