package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"github.com/ssgreg/logf"
	"github.com/ssgreg/logftext"
	"golang.org/x/time/rate"

	"github.com/manenim/cluster-rate-limiter/pkg/ratelimiter"
)

// Demo gateway: a process-local token bucket absorbs hot loops before they
// reach Redis, and the distributed limiter enforces one global budget
// across every replica of this server.
func main() {
	v := newConfig()

	logger, closeLogger := newLogger(v.GetBool("log.debug"))
	defer closeLogger()

	cfg, err := limiterConfig(v)
	if err != nil {
		logger.Error("invalid limiter configuration", logf.Error(err))
		os.Exit(1)
	}

	client := redis.NewClient(&redis.Options{Addr: v.GetString("redis.addr")})
	defer client.Close()

	recorder := ratelimiter.NewPrometheusRecorder(prometheus.DefaultRegisterer)
	rl, err := ratelimiter.NewRedisRateLimiter(client, v.GetString("limiter.name"),
		ratelimiter.WithPrefix("demo:"),
		ratelimiter.WithTimeout(2*time.Second),
		ratelimiter.WithRecorder(recorder),
		ratelimiter.WithLogger(logger),
	)
	if err != nil {
		logger.Error("failed to create rate limiter", logf.Error(err))
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	applied, err := rl.TrySetRate(ctx, cfg)
	if err != nil {
		logger.Error("failed to set rate", logf.Error(err))
		os.Exit(1)
	}
	if !applied {
		// Another replica configured the pool first; report what is active.
		active, err := rl.GetConfig(ctx)
		if err != nil {
			logger.Error("failed to read active configuration", logf.Error(err))
			os.Exit(1)
		}
		cfg = active
	}
	logger.Info("limiter ready",
		logf.String("name", v.GetString("limiter.name")),
		logf.String("mode", cfg.Mode.String()),
		logf.Int64("rate", cfg.Rate),
		logf.Duration("interval", cfg.Interval))

	shield := rate.NewLimiter(rate.Limit(v.GetFloat64("shield.rps")), v.GetInt("shield.burst"))
	retryAfter := strconv.Itoa(int(cfg.Interval.Round(time.Second) / time.Second))

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte("ok\n"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/ping", func(w http.ResponseWriter, req *http.Request) {
		if !shield.Allow() {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte("Local burst limit exceeded\n"))
			return
		}

		ok, err := rl.TryAcquire(req.Context())
		if err != nil {
			// Deny on store failure: protect the backend rather than
			// maximize availability. Flip this if your tradeoff differs.
			logger.Error("limiter unavailable", logf.Error(err))
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if !ok {
			w.Header().Set("Retry-After", retryAfter)
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte("Rate limit exceeded\n"))
			return
		}

		w.Write([]byte("Pong!\n"))
	})

	addr := v.GetString("server.addr")
	logger.Info("server listening",
		logf.String("addr", addr),
		logf.String("redis", v.GetString("redis.addr")))
	if err := http.ListenAndServe(addr, r); err != nil {
		logger.Error("server stopped", logf.Error(err))
		os.Exit(1)
	}
}

func newConfig() *viper.Viper {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.SetEnvPrefix("limiter_demo")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("limiter.name", "demo")
	v.SetDefault("limiter.mode", "overall")
	v.SetDefault("limiter.rate", 5)
	v.SetDefault("limiter.interval", "1s")
	v.SetDefault("limiter.keepalive", "0s")
	v.SetDefault("shield.rps", 100.0)
	v.SetDefault("shield.burst", 200)
	v.SetDefault("log.debug", false)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			fmt.Fprintf(os.Stderr, "failed to read config: %v\n", err)
			os.Exit(1)
		}
	}
	return v
}

func limiterConfig(v *viper.Viper) (ratelimiter.Config, error) {
	var mode ratelimiter.Mode
	switch v.GetString("limiter.mode") {
	case "overall":
		mode = ratelimiter.ModeOverall
	case "per_client":
		mode = ratelimiter.ModePerClient
	default:
		return ratelimiter.Config{}, fmt.Errorf("unknown limiter mode %q", v.GetString("limiter.mode"))
	}
	return ratelimiter.Config{
		Mode:      mode,
		Rate:      v.GetInt64("limiter.rate"),
		Interval:  v.GetDuration("limiter.interval"),
		KeepAlive: v.GetDuration("limiter.keepalive"),
	}, nil
}

func newLogger(debug bool) (*logf.Logger, func()) {
	writer, closeWriter := logf.NewChannelWriter(logf.ChannelWriterConfig{
		Appender:          logftext.NewAppender(os.Stdout, logftext.EncoderConfig{}),
		EnableSyncOnError: true,
	})
	level := logf.LevelInfo
	if debug {
		level = logf.LevelDebug
	}
	return logf.NewLogger(level, writer), func() { closeWriter() }
}
