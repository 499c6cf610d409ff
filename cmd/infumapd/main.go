// Command infumapd is the reference HTTP transport around the core
// engine: it exposes the command envelope over a single POST route,
// plus a liveness probe, using the same gin middleware stack and zap
// logging conventions as the rest of this codebase.
package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/secure"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mhowlett/infumap/internal/config"
	"github.com/mhowlett/infumap/internal/dispatcher"
	"github.com/mhowlett/infumap/internal/engine"
	"github.com/mhowlett/infumap/internal/transport/middleware"
	"github.com/mhowlett/infumap/pkg/jsonx"
)

// commandEnvelope is the wire shape for a single dispatched command:
// jsonData is itself an embedded JSON document, carried as a string so
// the outer envelope's schema never has to change shape per command.
type commandEnvelope struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
	Command   string `json:"command"`
	JSONData  string `json:"jsonData"`
}

type commandResponse struct {
	Success  bool   `json:"success"`
	JSONData string `json:"jsonData,omitempty"`
}

func newLogger() *zap.Logger {
	logConfig := zap.NewDevelopmentConfig()
	logConfig.EncoderConfig.TimeKey = ""
	logConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logConfig.DisableStacktrace = true
	logConfig.DisableCaller = true
	return zap.Must(logConfig.Build())
}

// zapRequestLogger is a gin middleware emitting one structured log line
// per request, level chosen by status code.
func zapRequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		latency := time.Since(start)
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}

		var errs []error
		for _, ge := range c.Errors {
			if ge.Err != nil {
				errs = append(errs, ge.Err)
			}
		}
		joinedErr := errors.Join(errs...)

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.Duration("latency", latency),
		}
		if joinedErr != nil {
			fields = append(fields, zap.Error(joinedErr))
		}

		switch {
		case status >= 500:
			log.Error("request", fields...)
		case status >= 400:
			log.Warn("request", fields...)
		default:
			log.Info("request", fields...)
		}
	}
}

func main() {
	log := newLogger()
	defer log.Sync()
	log = log.Named("main")

	cfg := config.Config{
		DBDir:    envOr("INFUMAP_DB_DIR", "./data/db"),
		FilesDir: envOr("INFUMAP_FILES_DIR", "./data/files"),
		CacheDir: envOr("INFUMAP_CACHE_DIR", "./data/cache"),
	}

	eng, err := engine.New(cfg, log)
	if err != nil {
		log.Fatal("engine init failed", zap.Error(err))
	}
	defer eng.Close()

	disp := dispatcher.New(eng, log)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	_ = r.SetTrustedProxies([]string{"127.0.0.1"})

	r.Use(gin.Recovery())

	if os.Getenv("ENV") == "dev" {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     []string{"http://localhost:5173"},
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Content-Type"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.Use(secure.New(secure.Config{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
	}))

	cookieStore := cookie.NewStore([]byte(envOr("INFUMAP_SESSION_SECRET", "dev-secret-change-me")))
	r.Use(sessions.Sessions("infumap_session", cookieStore))

	r.Use(middleware.RequestID())
	r.Use(middleware.CapConcurrentRequests(256))
	r.Use(zapRequestLogger(log))

	r.GET("/api/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	r.POST("/api/command", withBodyCap(1<<20), func(c *gin.Context) {
		var env commandEnvelope
		if err := jsonx.ParseJSONObject(io.Reader(c.Request.Body), &env); err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
			return
		}

		var data map[string]any
		if env.JSONData != "" {
			if err := jsonx.ParseStrictJSON([]byte(env.JSONData), &data); err != nil {
				_ = c.Error(err)
				c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
				return
			}
		}

		resp := disp.Dispatch(dispatcher.Request{
			UserID:    env.UserID,
			SessionID: env.SessionID,
			Command:   env.Command,
			JSONData:  data,
		})

		out := commandResponse{Success: resp.Success}
		if resp.JSONData != nil {
			b, err := json.Marshal(resp.JSONData)
			if err != nil {
				_ = c.Error(err)
				c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
				return
			}
			out.JSONData = string(b)
		}
		c.JSON(http.StatusOK, out)
	})

	httpserver := &http.Server{
		Addr:           envOr("INFUMAP_LISTEN_ADDR", "127.0.0.1:8080"),
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 15,
		ErrorLog:       zap.NewStdLog(log.Named("http").WithOptions(zap.AddCallerSkip(1))),
	}

	log.Info("running HTTP server", zap.String("addr", httpserver.Addr))
	if err := httpserver.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("server failed", zap.Error(err))
	}
}

func withBodyCap(maxBodyBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
		c.Next()
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
