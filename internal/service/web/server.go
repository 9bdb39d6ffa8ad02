package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"liuproxy_harvest/internal/shared/logger"
	"liuproxy_harvest/internal/shared/types"
)

// basicAuthMiddleware 检查 user 和 password 是否已配置。
// 如果配置了，它将强制执行 HTTP Basic Authentication。
func basicAuthMiddleware(next http.Handler, user, pass string) http.Handler {
	// 如果用户名或密码未设置，则不启用认证，直接返回原始处理器
	if user == "" || pass == "" {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || u != user || p != pass {
			w.Header().Set("WWW-Authenticate", `Basic realm="Restricted"`)
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte("Unauthorized.\n"))
			return
		}
		// 认证成功，继续处理请求
		next.ServeHTTP(w, r)
	})
}

// NewMux builds the routes of the progress feed.
func NewMux(cfg types.WebConf, hub *Hub, feed *Feed) http.Handler {
	handler := NewHandler(feed)
	mux := http.NewServeMux()

	mux.Handle("/api/status", basicAuthMiddleware(http.HandlerFunc(handler.HandleStatus), cfg.User, cfg.Password))
	mux.Handle("/ws", basicAuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r)
	}), cfg.User, cfg.Password))

	return mux
}

// StartServer 在 cfg.Port 上启动进度推送服务，ctx 结束时关闭。
// Port 为 0 时不启动并返回 nil。
func StartServer(ctx context.Context, wg *sync.WaitGroup, cfg types.WebConf, hub *Hub, feed *Feed) error {
	l := logger.WithComponent("Harvest/Web")
	if cfg.Port <= 0 {
		l.Debug().Msg("Progress feed is disabled (port is 0 or not set).")
		return nil
	}

	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start progress feed on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           NewMux(cfg, hub, feed),
		ReadHeaderTimeout: 10 * time.Second,
	}

	l.Info().Msgf("Progress feed is listening on http://%s", addr)

	wg.Add(2)
	go func() {
		defer wg.Done()
		hub.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error().Err(err).Msg("Web server error.")
		}
		l.Info().Msg("Web server stopped.")
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	return nil
}
