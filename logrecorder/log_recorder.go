package logrecorder

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/LoveWonYoung/vcimon/config"
)

func stamp(t time.Time) string {
	return t.Format("20060102_1504")
}

// MakeDir 在 base 下创建 day 对应日期命名的目录（如：2025_04_25），已存在时直接返回
func MakeDir(base string, day time.Time) (string, error) {
	dirName := fmt.Sprintf("%d_%02d_%02d", day.Year(), day.Month(), day.Day())
	fullPath := filepath.Join(base, dirName)
	if err := os.MkdirAll(fullPath, 0o755); err != nil {
		return "", fmt.Errorf("创建文件夹失败: %w", err)
	}
	return fullPath, nil
}

// RotatingFile is a zapcore.WriteSyncer that starts a new
// <prefix><stamp><ext> file in the day's directory every period.
type RotatingFile struct {
	mu       sync.Mutex
	base     string
	prefix   string
	ext      string
	every    time.Duration
	now      func() time.Time
	f        *os.File
	openedAt time.Time
}

// NewRotatingFile opens the first file immediately. every <= 0 disables rotation.
func NewRotatingFile(base, prefix, ext string, every time.Duration) (*RotatingFile, error) {
	r := &RotatingFile{base: base, prefix: prefix, ext: ext, every: every, now: time.Now}
	if err := r.rotate(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *RotatingFile) rotate() error {
	now := r.now()
	dir, err := MakeDir(r.base, now)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, r.prefix+stamp(now)+r.ext)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o666)
	if err != nil {
		return fmt.Errorf("打开日志文件失败: %w", err)
	}
	if r.f != nil {
		_ = r.f.Close()
	}
	r.f = f
	r.openedAt = now
	return nil
}

func (r *RotatingFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return 0, os.ErrClosed
	}
	if r.every > 0 && r.now().Sub(r.openedAt) >= r.every {
		if err := r.rotate(); err != nil {
			// keep writing to the old file rather than losing the entry
			fmt.Fprintf(os.Stderr, "日志轮换失败: %v\n", err)
		}
	}
	return r.f.Write(p)
}

func (r *RotatingFile) Sync() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return nil
	}
	return r.f.Sync()
}

// Name returns the path of the file currently written.
func (r *RotatingFile) Name() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return ""
	}
	return r.f.Name()
}

func (r *RotatingFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return nil
	}
	err := r.f.Close()
	r.f = nil
	return err
}

// NewLogger builds the process logger: human readable on stderr and, when
// cfg.File is set, JSON lines into a rotating file under cfg.Dir.
// The returned func flushes and closes the file.
func NewLogger(cfg config.LogConfig) (*zap.Logger, func(), error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("log.level: %w", err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	consoleEnc := zapcore.NewConsoleEncoder(encCfg)
	cores := []zapcore.Core{
		zapcore.NewCore(consoleEnc, zapcore.Lock(os.Stderr), level),
	}

	var file *RotatingFile
	if cfg.File {
		file, err = NewRotatingFile(cfg.Dir, cfg.Prefix, ".log", cfg.RotateEvery)
		if err != nil {
			return nil, nil, err
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), file, level))
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	cleanup := func() {
		_ = logger.Sync()
		if file != nil {
			_ = file.Close()
		}
	}
	return logger, cleanup, nil
}
