package api

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"gopkg.in/mcuadros/go-monitor.v1/aspects"

	"github.com/DeanThompson/ginpprof"
	"github.com/fsnotify/fsnotify"
	"github.com/gin-gonic/gin"
	"github.com/golang/glog"
	"github.com/pkg/errors"
	"github.com/szuecs/firmware-server/conf"
	ginglog "github.com/szuecs/gin-glog"
	gomonitor "github.com/szuecs/gin-gomonitor"
	ginmon "github.com/szuecs/gin-gomonitor/aspects"
)

const shutdownTimeout = 5 * time.Second

// Service is the main struct
type Service struct {
	config   *conf.Config
	firmware *Firmware
	stats    *FirmwareAspect
	counter  *ginmon.CounterAspect
	healthy  atomic.Bool
}

func NewService(cfg *conf.Config) *Service {
	return &Service{
		config:   cfg,
		firmware: &Firmware{Path: cfg.FirmwarePath},
		stats:    NewFirmwareAspect(),
	}
}

// Stats returns the aspect counting firmware downloads.
func (svc *Service) Stats() *FirmwareAspect {
	return svc.stats
}

// checkDependencies reports whether the directory that holds the
// firmware exists. A missing artifact is fine, it is answered with 404.
func (svc *Service) checkDependencies() error {
	dir := filepath.Dir(svc.firmware.Path)
	info, err := os.Stat(dir)
	if err != nil {
		return errors.Wrap(err, "firmware directory is not usable")
	}
	if !info.IsDir() {
		return errors.Errorf("firmware directory %s is not a directory", dir)
	}
	return nil
}

// Router creates the gin engine with middleware and route endpoints.
func (svc *Service) Router() *gin.Engine {
	router := gin.New()
	// POST /firmware and friends answer 405 instead of 404
	router.HandleMethodNotAllowed = true

	// Middleware
	router.Use(ginglog.Logger(svc.config.LogFlushInterval))
	if svc.counter != nil {
		router.Use(ginmon.CounterHandler(svc.counter))
	}
	router.Use(gin.Recovery())

	//
	//  Handlers
	//
	router.GET("/healthz", svc.HealthHandler)
	router.GET("/firmware", svc.FirmwareHandler)

	if svc.config.ProfilingEnabled {
		ginpprof.Wrapper(router)
	}
	return router
}

// Run is the main function of the server. It starts the monitor,
// binds the configured address and serves until SIGTERM or SIGINT.
func (svc *Service) Run() error {
	cfg := svc.config

	// init gin
	if !cfg.DebugEnabled {
		gin.SetMode(gin.ReleaseMode)
	}

	if cfg.MonitorPort != 0 {
		// initialize CounterAspect and reset every minute
		counterAspect := ginmon.NewCounterAspect()
		counterAspect.StartTimer(1 * time.Minute)
		svc.counter = counterAspect
		asps := []aspects.Aspect{counterAspect, svc.stats}
		gomonitor.Start(cfg.MonitorPort, asps)
		glog.Infof("Monitor aspects available on port %d", cfg.MonitorPort)
	}

	addr := cfg.ListenAddr()
	conn, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "can not listen on %s", addr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, os.Interrupt)
	defer stop()
	return svc.Serve(ctx, conn)
}

// Serve answers requests on conn until ctx is done, then shuts the
// server down gracefully. It closes conn.
func (svc *Service) Serve(ctx context.Context, conn net.Listener) error {
	svc.stats.Refresh(svc.firmware)
	if svc.config.WatchEnabled {
		watcher, err := NewWatcher(svc.firmware.Path, func(fsnotify.Event) {
			svc.stats.Refresh(svc.firmware)
		})
		if err != nil {
			glog.Warningf("Firmware changes will not be reported: %v", err)
		} else {
			defer watcher.Close()
		}
	}

	serve := &http.Server{
		Handler: svc.Router(),
	}

	if err := svc.checkDependencies(); err != nil {
		glog.Errorf("Unhealthy until fixed: %v", err)
	}
	svc.SetHealthy(true)

	errc := make(chan error, 1)
	go func() {
		errc <- serve.Serve(conn)
	}()
	glog.Infof("Serving %s on http://%s/firmware", svc.firmware.Path, conn.Addr())

	select {
	case err := <-errc:
		svc.SetHealthy(false)
		return errors.Wrap(err, "can not serve HTTP")
	case <-ctx.Done():
	}

	glog.Info("Shutdown..")
	svc.SetHealthy(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := serve.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "failed to shutdown")
	}
	if err := <-errc; err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "can not serve HTTP")
	}
	return nil
}
