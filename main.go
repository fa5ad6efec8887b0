package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"miniarena-client/client"
)

// MiniArena 客户端入口：连接服务端、驱动帧循环，并提供控制台与本地调试接口
func main() {
	var (
		configPath string
		debugAddr  string
		noConsole  bool
	)
	flag.StringVar(&configPath, "config", "", "path to client YAML config (default $ARENA_CONFIG)")
	flag.StringVar(&debugAddr, "debug-addr", "", "debug HTTP listen address, e.g. :6060")
	flag.BoolVar(&noConsole, "no-console", false, "do not read commands from stdin")
	flag.Parse()

	cfg, err := client.LoadConfig(configPath)
	if err != nil {
		panic(err)
	}
	if debugAddr != "" {
		cfg.Debug.Addr = debugAddr
	}

	log, err := client.NewLogger(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer client.SyncLogger(log)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := client.NewMetrics(reg)

	// 优雅退出（Ctrl+C）
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader, err := client.NewHTTPAssetLoader(ctx, cfg.Assets.BaseURL, cfg.Assets.MaxParallel, nil)
	if err != nil {
		log.Fatalf("asset loader: %v", err)
	}
	renderer := newCanvasRenderer(int(cfg.View.Width), int(cfg.View.Height))

	session := client.NewSession(cfg, client.Deps{
		Dialer:   client.WSDialer{Dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second}},
		Renderer: renderer,
		Loader:   loader,
		Log:      log,
		Metrics:  metrics,
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		client.RunFrameDriver(ctx, cfg.Frame.FPS, session)
	}()

	if cfg.Debug.Addr != "" {
		srv := &http.Server{Addr: cfg.Debug.Addr, Handler: client.NewDebugMux(session, reg, log)}
		go func() {
			log.Infof("debug server listening on %s", cfg.Debug.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorf("debug listen: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if !noConsole {
		con := &console{ctl: session, out: os.Stdout, snapshot: renderer.WritePNG}
		go func() {
			if err := con.run(ctx, os.Stdin); errors.Is(err, io.EOF) {
				stop()
			}
		}()
	}

	log.Infof("MiniArena client %s -> %s as %q", cfg.Server.URL, cfg.Assets.BaseURL, cfg.Server.Username)
	if err := session.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Errorf("session: %v", err)
	}
	log.Info("Shutting down...")
	wg.Wait()
	loader.Wait()
	frames, calls := renderer.Stats()
	log.Infof("rendered %d frames (%d draw calls in last frame)", frames, calls)
}
