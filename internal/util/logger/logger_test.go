package logger

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLogger_SameInstance 同一子系统多次获取返回同一实例
func TestLogger_SameInstance(t *testing.T) {
	l1 := Logger("test/subsys")
	l2 := Logger("test/subsys")

	require.NotNil(t, l1)
	assert.Same(t, l1, l2)
}

// TestParseLevelConfig 解析子系统级别配置
func TestParseLevelConfig(t *testing.T) {
	cfg := &Config{
		DefaultLevel:    slog.LevelInfo,
		SubsystemLevels: make(map[string]slog.Level),
	}

	parseLevelConfig(cfg, "core/proxy=debug,gateway=warn,error")

	assert.Equal(t, slog.LevelDebug, cfg.SubsystemLevels["core/proxy"])
	assert.Equal(t, slog.LevelWarn, cfg.SubsystemLevels["gateway"])
	assert.Equal(t, slog.LevelError, cfg.DefaultLevel)
}

// TestLevelForSubsystem 未配置的子系统回落到默认级别
func TestLevelForSubsystem(t *testing.T) {
	cfg := &Config{
		DefaultLevel: slog.LevelWarn,
		SubsystemLevels: map[string]slog.Level{
			"core/mapping": slog.LevelDebug,
		},
	}

	assert.Equal(t, slog.LevelDebug, cfg.LevelForSubsystem("core/mapping"))
	assert.Equal(t, slog.LevelWarn, cfg.LevelForSubsystem("unknown"))
}

// TestParseLevel 级别名称解析
func TestParseLevel(t *testing.T) {
	cases := []struct {
		name  string
		level slog.Level
		ok    bool
	}{
		{"debug", slog.LevelDebug, true},
		{"INFO", slog.LevelInfo, true},
		{"warning", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"verbose", slog.LevelInfo, false},
	}

	for _, c := range cases {
		level, ok := parseLevel(c.name)
		assert.Equal(t, c.ok, ok, c.name)
		assert.Equal(t, c.level, level, c.name)
	}
}

// TestDiscard Discard Logger 不输出任何内容
func TestDiscard(t *testing.T) {
	l := Discard()
	require.NotNil(t, l)

	// 任何级别都不应 panic
	l.Debug("debug")
	l.Info("info")
	l.Warn("warn")
	l.Error("error")
}

// TestSetLevel 动态调整子系统级别
func TestSetLevel(t *testing.T) {
	l := Logger("test/dynamic")
	require.NotNil(t, l)

	SetLevel("test/dynamic", slog.LevelError)

	h, ok := handlers.Load("test/dynamic")
	require.True(t, ok)
	assert.False(t, h.(*subsystemHandler).Enabled(nil, slog.LevelInfo))
	assert.True(t, h.(*subsystemHandler).Enabled(nil, slog.LevelError))
}
