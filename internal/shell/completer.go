package shell

import (
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"bashkit/pkg/platform"
)

// Completer 实现readline的自动补全接口
// 返回的候选项是需要追加在光标处的后缀
type Completer struct {
	shell *Shell
}

// NewCompleter 创建新的补全器
func NewCompleter(s *Shell) *Completer {
	return &Completer{shell: s}
}

// Do 执行自动补全
func (c *Completer) Do(line []rune, pos int) (newLine [][]rune, length int) {
	lineStr := string(line[:pos])

	// 光标前的最后一个词
	start := strings.LastIndexAny(lineStr, " \t|&;(<>") + 1
	current := lineStr[start:]
	before := strings.TrimSpace(lineStr[:start])

	var candidates []string
	switch {
	case strings.HasPrefix(current, "$"):
		candidates = c.completeVariables(current)
	case before == "" || strings.HasSuffix(before, "|") || strings.HasSuffix(before, "&") ||
		strings.HasSuffix(before, ";") || strings.HasSuffix(before, "("):
		// 命令位置
		if strings.ContainsRune(current, '/') {
			candidates = c.completeFiles(current)
		} else {
			candidates = c.completeCommands(current)
		}
	default:
		candidates = c.completeFiles(current)
	}

	for _, cand := range candidates {
		newLine = append(newLine, []rune(cand[len(current):]))
	}
	return newLine, len([]rune(current))
}

// completeCommands 补全内置命令和PATH中的外部命令
func (c *Completer) completeCommands(prefix string) []string {
	seen := make(map[string]bool)
	var matches []string
	add := func(name string) {
		if strings.HasPrefix(name, prefix) && !seen[name] {
			seen[name] = true
			matches = append(matches, name)
		}
	}

	for _, name := range c.shell.builtins.Names() {
		add(name)
	}

	for _, dir := range filepath.SplitList(os.Getenv("PATH")) {
		if dir == "" {
			continue
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			name := entry.Name()
			// 移除.exe扩展名（Windows）
			if runtime.GOOS == "windows" {
				name = strings.TrimSuffix(name, ".exe")
			}
			add(name)
		}
	}

	slices.Sort(matches)
	return matches
}

// completeVariables 补全shell变量和环境变量
func (c *Completer) completeVariables(prefix string) []string {
	braced := strings.HasPrefix(prefix, "${")
	varName := strings.TrimPrefix(strings.TrimPrefix(prefix, "$"), "{")

	names := c.shell.exec.VarNames()
	for _, env := range os.Environ() {
		if key, _, ok := strings.Cut(env, "="); ok {
			names = append(names, key)
		}
	}
	slices.Sort(names)
	names = slices.Compact(names)

	var matches []string
	for _, key := range names {
		if !strings.HasPrefix(key, varName) {
			continue
		}
		if braced {
			matches = append(matches, "${"+key+"}")
		} else {
			matches = append(matches, "$"+key)
		}
	}
	return matches
}

// completeFiles 补全相对shell当前目录的文件名
func (c *Completer) completeFiles(prefix string) []string {
	dirPart, pattern := "", prefix
	if i := strings.LastIndex(prefix, "/"); i >= 0 {
		dirPart, pattern = prefix[:i+1], prefix[i+1:]
	}

	dir := dirPart
	if !platform.IsAbsolute(dir) {
		base, err := c.shell.exec.ActiveDir()
		if err != nil {
			return nil
		}
		dir = platform.JoinPath(base, dirPart)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var matches []string
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, pattern) {
			continue
		}
		// 隐藏文件只在明确输入 . 时补全
		if strings.HasPrefix(name, ".") && !strings.HasPrefix(pattern, ".") {
			continue
		}
		full := dirPart + name
		if entry.IsDir() {
			full += "/"
		}
		matches = append(matches, full)
	}
	return matches
}
