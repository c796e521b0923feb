package logx

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

type caller struct {
	file     string
	line     int
	funcName string
}

// -------------------- 调用方信息 --------------------

// getCaller 向上找到第一个不属于 logx 自身的栈帧
func getCaller() caller {
	pcs := make([]uintptr, 16)
	n := runtime.Callers(2, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		f, more := frames.Next()
		if !isLogxFrame(f.File) {
			return caller{
				file:     trimFilePath(f.File),
				line:     f.Line,
				funcName: trimFuncName(f.Function),
			}
		}
		if !more {
			break
		}
	}
	return caller{funcName: "unknown"}
}

var (
	logxDirOnce sync.Once
	logxDir     string
)

func isLogxFrame(file string) bool {
	logxDirOnce.Do(func() {
		_, self, _, ok := runtime.Caller(0)
		if ok {
			logxDir = filepath.Dir(self)
		}
	})
	if logxDir == "" || strings.HasSuffix(file, "_test.go") {
		return false
	}
	return filepath.Dir(file) == logxDir
}

var (
	modRootOnce sync.Once
	modRoot     string
)

func getModRoot(fullPath string) string {
	modRootOnce.Do(func() {
		m, err := findGoModRoot(fullPath)
		if err == nil {
			modRoot = m
		}
	})
	return modRoot
}

// /Users/xxx/project/orbitrace/tracex/span.go -> tracex/span.go
func trimFilePath(fullPath string) string {
	if fullPath == "" {
		return ""
	}
	if root := getModRoot(fullPath); root != "" {
		if rel, err := filepath.Rel(root, fullPath); err == nil && !strings.HasPrefix(rel, "..") {
			return rel
		}
	}
	_, short := filepath.Split(fullPath)
	return short
}

func findGoModRoot(start string) (string, error) {
	dir := filepath.Dir(start)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", fmt.Errorf("go.mod not found")
}

// github.com/imattdu/orbitrace/middleware.(*Tracing).intercept -> (*Tracing).intercept
func trimFuncName(name string) string {
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	if idx := strings.Index(name, "."); idx >= 0 && idx+1 < len(name) {
		name = name[idx+1:]
	}
	return name
}
