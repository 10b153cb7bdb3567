package shell

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"bashkit/internal/builtin"
)

// History 命令历史管理器
type History struct {
	commands []string
	maxSize  int
}

// NewHistory 创建新的历史管理器
func NewHistory(maxSize int) *History {
	return &History{
		commands: make([]string, 0, maxSize),
		maxSize:  maxSize,
	}
}

// Add 添加命令到历史
func (h *History) Add(cmd string) {
	cmd = strings.TrimSpace(cmd)
	if cmd == "" {
		return
	}

	// 避免重复添加相同的命令
	if len(h.commands) > 0 && h.commands[len(h.commands)-1] == cmd {
		return
	}

	h.commands = append(h.commands, cmd)
	if len(h.commands) > h.maxSize {
		h.commands = h.commands[1:]
	}
}

// All 获取所有历史命令
func (h *History) All() []string {
	return append([]string(nil), h.commands...)
}

// Size 获取历史记录数量
func (h *History) Size() int {
	return len(h.commands)
}

// Clear 清空历史
func (h *History) Clear() {
	h.commands = h.commands[:0]
}

// LoadFromFile 从文件加载历史记录，保留最新的 maxSize 条
func (h *History) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // 文件不存在不算错误
		}
		return err
	}

	for _, line := range strings.Split(string(data), "\n") {
		h.Add(line)
	}
	return nil
}

// SaveToFile 保存历史记录到文件
func (h *History) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	content := strings.Join(h.commands, "\n")
	if content != "" {
		content += "\n"
	}
	return os.WriteFile(filename, []byte(content), 0o644)
}

// Builtin 返回 history 内置命令
// history 列出全部，history N 列出最后N条，history -c 清空
func (h *History) Builtin() builtin.BuiltinFunc {
	return func(sh builtin.Shell, args []string) (builtin.CmdOut, error) {
		start := 0
		switch {
		case len(args) > 1:
			return builtin.CmdOut{Stderr: "history: too many arguments\n", Code: 1}, nil
		case len(args) == 1 && args[0] == "-c":
			h.Clear()
			return builtin.CmdOut{}, nil
		case len(args) == 1:
			n, err := strconv.Atoi(args[0])
			if err != nil || n < 0 {
				return builtin.CmdOut{Stderr: fmt.Sprintf("history: %s: numeric argument required\n", args[0]), Code: 1}, nil
			}
			start = max(len(h.commands)-n, 0)
		}

		var sb strings.Builder
		for i := start; i < len(h.commands); i++ {
			fmt.Fprintf(&sb, "%5d  %s\n", i+1, h.commands[i])
		}
		return builtin.CmdOut{Stdout: sb.String()}, nil
	}
}
