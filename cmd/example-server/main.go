// Command example-server fronts a small HTTP API with the admission engine:
// layered upload quotas per client IP, a stricter budget for failed auth
// attempts, rate-limit headers on every decision and Prometheus metrics.
package main

import (
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tobenna/request-limiter/internal/config"
	"github.com/tobenna/request-limiter/pkg/limiter"
)

func clientIP(r *limiter.Request) (string, error) {
	req, ok := r.Data.(*http.Request)
	if !ok {
		return "", fmt.Errorf("no http request attached")
	}
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr, nil
	}
	return host, nil
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.Load(os.Getenv("RATELIMIT_CONFIG"))
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	recorder, err := limiter.NewPrometheusRecorder(prometheus.DefaultRegisterer, "example")
	if err != nil {
		logger.Fatal("register metrics", zap.Error(err))
	}

	opts := append(cfg.Options(),
		limiter.WithLogger(logger),
		limiter.WithRecorder(recorder),
	)
	if cfg.DefaultLimits == "" {
		opts = append(opts, limiter.WithDefaultLimits("200 per minute"))
	}

	engine, err := limiter.New(clientIP, opts...)
	if err != nil {
		logger.Fatal("build engine", zap.Error(err))
	}
	defer engine.Close()

	// Uploads are bounded on three horizons at once; the tightest one that
	// is exhausted decides.
	if err := engine.RegisterRoute("/upload",
		limiter.WithLimit("20 per minute;100 per hour;1000 per day"),
		limiter.WithMethods("POST"),
		limiter.WithErrorMessage("upload quota exceeded"),
	); err != nil {
		logger.Fatal("register route", zap.Error(err))
	}

	// Failed authentication attempts get their own tight budget on a
	// separate in-memory engine, so credential probing cannot burn upload
	// quota and vice versa.
	authLimiter, err := limiter.New(clientIP)
	if err != nil {
		logger.Fatal("build auth limiter", zap.Error(err))
	}
	if err := authLimiter.RegisterRoute("auth-failure",
		limiter.WithLimit("5 per minute"),
	); err != nil {
		logger.Fatal("register auth limit", zap.Error(err))
	}

	apiKey := os.Getenv("API_KEY")

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) {
		if apiKey != "" && r.Header.Get("Authorization") != "Bearer "+apiKey {
			res, err := authLimiter.Check(r.Context(), &limiter.Request{Route: "auth-failure", Data: r})
			if err == nil && !res.Allowed {
				http.Error(w, "too many failed authentication attempts", http.StatusTooManyRequests)
				return
			}
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		res, err := engine.Check(r.Context(), &limiter.Request{Route: "/upload", Method: r.Method, Data: r})
		if err != nil {
			logger.Error("admission check", zap.Error(err))
			http.Error(w, "service degraded", http.StatusServiceUnavailable)
			return
		}
		engine.Headers().Write(w.Header(), res)
		if !res.Allowed {
			msg := res.ErrorMessage
			if msg == "" {
				msg = "rate limit exceeded"
			}
			http.Error(w, msg, http.StatusTooManyRequests)
			return
		}

		w.Write([]byte("stored\n"))
	})

	mux.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		res, err := engine.Check(r.Context(), &limiter.Request{Route: "/ping", Method: r.Method, Data: r})
		if err != nil {
			logger.Error("admission check", zap.Error(err))
			http.Error(w, "service degraded", http.StatusServiceUnavailable)
			return
		}
		engine.Headers().Write(w.Header(), res)
		if !res.Allowed {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		w.Write([]byte("pong\n"))
	})

	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	logger.Info("listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Fatal("serve", zap.Error(err))
	}
}
