package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"board-api/api"
	"board-api/collection"
	"board-api/feed"
	"board-api/realtime"
	"board-api/storage"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}

	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	boardsTable := os.Getenv("BOARDS_TABLE")
	listsTable := os.Getenv("LISTS_TABLE")
	tasksTable := os.Getenv("TASKS_TABLE")
	changeFeedQueue := os.Getenv("CHANGE_FEED_QUEUE")
	if connStr == "" || boardsTable == "" || listsTable == "" || tasksTable == "" || changeFeedQueue == "" {
		log.Fatal("missing storage config")
	}
	store, err := storage.New(connStr, boardsTable, listsTable, tasksTable, changeFeedQueue)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	logger := log.New()
	logger.SetLevel(log.GetLevel())

	// Redis is optional: without it the service runs single-node with no
	// view cache and no cross-node broadcast relay.
	var rc *redis.Client
	if redisConn := os.Getenv("REDIS_CONNECTION_STRING"); redisConn != "" {
		rc = redis.NewClient(redisOptions(redisConn))
	}

	cacheTTL := envDuration("VIEW_CACHE_TTL", 30*time.Second)
	views := storage.NewViewCache(store, rc, cacheTTL)

	var relay *realtime.Relay
	if rc != nil {
		relay = realtime.NewRelay(rc, envString("RELAY_CHANNEL", "board-events"), logger)
	}
	registry := realtime.NewRegistry()
	hub := realtime.NewHub(registry, relay, logger)

	publisher := feed.NewPublisher(store, logger, feed.Config{
		Workers: envInt("FEED_WORKERS", 4),
		Buffer:  envInt("FEED_BUFFER", 1024),
	})
	defer publisher.Close()

	notifier := api.NewChangeNotifier(hub, publisher, views)
	coll := collection.New(store)

	var auth *api.Auth
	if os.Getenv("AUTH0_TEST_MODE") == "1" {
		secret := os.Getenv("AUTH0_TEST_SECRET")
		if secret == "" {
			log.Fatal("AUTH0_TEST_MODE requires AUTH0_TEST_SECRET")
		}
		auth = api.NewTestAuth([]byte(secret), os.Getenv("AUTH0_AUDIENCE"), "")
	} else {
		jwtAudience := os.Getenv("AUTH0_AUDIENCE")
		domain := os.Getenv("AUTH0_DOMAIN")
		if jwtAudience == "" || domain == "" {
			log.Fatal("missing Auth0 config")
		}
		jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", domain)
		jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
		if err != nil {
			log.Fatalf("jwks: %v", err)
		}
		auth = api.NewAuth(jwks, jwtAudience, "https://"+domain+"/")
	}

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	e.Use(api.RequestDecompression())

	api.Register(e, api.Deps{
		Store:      store,
		Views:      views,
		Collection: coll,
		Notifier:   notifier,
		Auth:       auth,
		Logger:     logger,
	})
	api.RegisterWS(e, auth, registry, hub, logger, envDuration("WS_IDLE_TIMEOUT", realtime.DefaultIdleTimeout))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	listenAddr := ":8080"
	if val, ok := os.LookupEnv("FUNCTIONS_CUSTOMHANDLER_PORT"); ok {
		listenAddr = ":" + val
	}

	e.Logger.Fatal(e.Start(listenAddr))
}

// redisOptions accepts either a redis URL or the comma-separated
// host,password=...,ssl=true form Azure hands out.
func redisOptions(conn string) *redis.Options {
	opts, err := redis.ParseURL(conn)
	if err == nil {
		return opts
	}
	parts := strings.Split(conn, ",")
	opts = &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(kv[0]) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.ToLower(kv[1]) == "true" {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts
}

func envString(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func envInt(name string, fallback int) int {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Fatalf("invalid %s: %q", name, v)
	}
	return n
}

func envDuration(name string, fallback time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Fatalf("invalid %s: %q", name, v)
	}
	return d
}
