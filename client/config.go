package client

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 客户端配置（YAML）；未填写的字段依次取环境变量与默认值
type Config struct {
	Server ServerConfig `yaml:"server"`
	World  WorldConfig  `yaml:"world"`
	View   ViewConfig   `yaml:"view"`
	Input  InputConfig  `yaml:"input"`
	Frame  FrameConfig  `yaml:"frame"`
	Assets AssetsConfig `yaml:"assets"`
	Log    LogConfig    `yaml:"log"`
	Debug  DebugConfig  `yaml:"debug"`
}

type ServerConfig struct {
	URL              string `yaml:"url"`
	Username         string `yaml:"username"`
	ReconnectDelayMs int    `yaml:"reconnect_delay_ms"`
}

type WorldConfig struct {
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
	MapURL string  `yaml:"map_url"`
}

type ViewConfig struct {
	Width      float64 `yaml:"width"`
	Height     float64 `yaml:"height"`
	Zoom       float64 `yaml:"zoom"`
	AvatarSize float64 `yaml:"avatar_size"`
	CullMargin float64 `yaml:"cull_margin"`
}

type InputConfig struct {
	MoveRepeatMs int `yaml:"move_repeat_ms"`
}

type FrameConfig struct {
	FPS int `yaml:"fps"`
}

type AssetsConfig struct {
	BaseURL     string `yaml:"base_url"`
	MaxParallel int    `yaml:"max_parallel"`
}

type LogConfig struct {
	File    string `yaml:"file"`
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

type DebugConfig struct {
	Addr string `yaml:"addr"`
}

// ReconnectDelay 重连延迟
func (s ServerConfig) ReconnectDelay() time.Duration {
	return time.Duration(s.ReconnectDelayMs) * time.Millisecond
}

// MoveRepeat 按键重复间隔
func (i InputConfig) MoveRepeat() time.Duration {
	return time.Duration(i.MoveRepeatMs) * time.Millisecond
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			URL:              "ws://localhost:8080/ws",
			Username:         "player",
			ReconnectDelayMs: int(DefaultReconnectDelay / time.Millisecond),
		},
		World: WorldConfig{Width: 2048, Height: 2048, MapURL: "/assets/world-map.png"},
		View: ViewConfig{
			Width:      800,
			Height:     600,
			Zoom:       1,
			AvatarSize: DefaultAvatarSize,
			CullMargin: DefaultCullMargin,
		},
		Input:  InputConfig{MoveRepeatMs: int(DefaultMoveRepeat / time.Millisecond)},
		Frame:  FrameConfig{FPS: 60},
		Assets: AssetsConfig{BaseURL: "http://localhost:8080", MaxParallel: 4},
		Log:    LogConfig{File: "client.log", Level: "debug"},
		Debug:  DebugConfig{Addr: ""},
	}
}

// LoadConfig 读取 YAML 配置。path 为空时尝试 ENV ARENA_CONFIG，都没有则只用环境变量与默认值。
// 单个字段的优先级：config -> env -> default
func LoadConfig(path string) (Config, error) {
	if path == "" {
		path = os.Getenv("ARENA_CONFIG")
	}
	var fileCfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	fileCfg.Server.URL = stringWithEnvFallback(fileCfg.Server.URL, "ARENA_SERVER_URL")
	fileCfg.Server.Username = stringWithEnvFallback(fileCfg.Server.Username, "ARENA_USERNAME")
	fileCfg.Server.ReconnectDelayMs = intWithEnvFallback(fileCfg.Server.ReconnectDelayMs, "ARENA_RECONNECT_DELAY_MS")
	fileCfg.Debug.Addr = stringWithEnvFallback(fileCfg.Debug.Addr, "ARENA_DEBUG_ADDR")

	cfg := DefaultConfig()
	cfg.merge(fileCfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// merge 用文件中非零的字段覆盖默认值
func (c *Config) merge(o Config) {
	setString(&c.Server.URL, o.Server.URL)
	setString(&c.Server.Username, o.Server.Username)
	setInt(&c.Server.ReconnectDelayMs, o.Server.ReconnectDelayMs)
	setFloat(&c.World.Width, o.World.Width)
	setFloat(&c.World.Height, o.World.Height)
	setString(&c.World.MapURL, o.World.MapURL)
	setFloat(&c.View.Width, o.View.Width)
	setFloat(&c.View.Height, o.View.Height)
	setFloat(&c.View.Zoom, o.View.Zoom)
	setFloat(&c.View.AvatarSize, o.View.AvatarSize)
	setFloat(&c.View.CullMargin, o.View.CullMargin)
	setInt(&c.Input.MoveRepeatMs, o.Input.MoveRepeatMs)
	setInt(&c.Frame.FPS, o.Frame.FPS)
	setString(&c.Assets.BaseURL, o.Assets.BaseURL)
	setInt(&c.Assets.MaxParallel, o.Assets.MaxParallel)
	setString(&c.Log.File, o.Log.File)
	setString(&c.Log.Level, o.Log.Level)
	c.Log.Console = c.Log.Console || o.Log.Console
	setString(&c.Debug.Addr, o.Debug.Addr)
}

// Validate 校验尺寸与缩放范围
func (c Config) Validate() error {
	switch {
	case c.Server.URL == "":
		return fmt.Errorf("config: server.url is required")
	case c.World.Width <= 0 || c.World.Height <= 0:
		return fmt.Errorf("config: world size must be positive, got %vx%v", c.World.Width, c.World.Height)
	case c.View.Width <= 0 || c.View.Height <= 0:
		return fmt.Errorf("config: view size must be positive, got %vx%v", c.View.Width, c.View.Height)
	case c.View.Zoom < MinZoom || c.View.Zoom > MaxZoom:
		return fmt.Errorf("config: view.zoom %v outside [%v, %v]", c.View.Zoom, MinZoom, MaxZoom)
	case c.Frame.FPS <= 0:
		return fmt.Errorf("config: frame.fps must be positive, got %d", c.Frame.FPS)
	}
	return nil
}

// stringWithEnvFallback 配置为空时读取环境变量
func stringWithEnvFallback(configured, envVar string) string {
	if configured != "" {
		return configured
	}
	return os.Getenv(envVar)
}

func intWithEnvFallback(configured int, envVar string) int {
	if configured > 0 {
		return configured
	}
	if envVal := os.Getenv(envVar); envVal != "" {
		if v, err := strconv.Atoi(envVal); err == nil && v > 0 {
			return v
		}
	}
	return 0
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func setFloat(dst *float64, v float64) {
	if v > 0 {
		*dst = v
	}
}
