package main

import (
	"context"
	"flag"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	chimw "github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/koshroy/outpost/actorresolver"
	"github.com/koshroy/outpost/audience"
	"github.com/koshroy/outpost/collections"
	"github.com/koshroy/outpost/delivery"
	"github.com/koshroy/outpost/eventsocket"
	"github.com/koshroy/outpost/iri"
	"github.com/koshroy/outpost/keystore"
	mware "github.com/koshroy/outpost/middleware"
	"github.com/koshroy/outpost/models"
	"github.com/koshroy/outpost/normalize"
	"github.com/koshroy/outpost/outbox"
	"github.com/koshroy/outpost/store"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to the server config")
	flag.Parse()

	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	conf, err := LoadConfig(*configPath)
	if err != nil {
		log.Fatal("loading config", zap.Error(err))
	}

	activityStore, err := buildStore(conf, log)
	if err != nil {
		log.Fatal("building activity store", zap.Error(err))
	}

	cache := buildCache(conf, log)

	keys := keystore.NewRegistry()
	baseURL := conf.BaseURL()
	if err := provisionLocalActors(context.Background(), activityStore, keys, baseURL, conf.Server.LocalActors); err != nil {
		log.Fatal("provisioning local actors", zap.Error(err))
	}

	httpClient := &http.Client{Timeout: time.Duration(conf.Delivery.TimeoutSeconds) * time.Second}

	actors := actorresolver.New(activityStore, httpClient, cache, baseURL)
	normalizer := normalize.New(httpClient)

	pipeline := &outbox.Pipeline{
		Normalizer: normalizer,
		Store:      activityStore,
		Actors:     actors,
		BaseURL:    baseURL,
	}
	coll := collections.New(activityStore, baseURL, pipeline.Reenter)
	aud := audience.New(actors, coll, baseURL)

	metrics := delivery.NewMetrics(prometheus.DefaultRegisterer)
	signerFor := func(senderIRI string) (delivery.Signer, error) {
		return keys.SignerFor(senderIRI, func(i string) string { return iri.Username(baseURL, i) })
	}
	keyIDFor := func(senderIRI string) string { return senderIRI + "#main-key" }
	deliv := delivery.NewEngine(httpClient, activityStore, signerFor, keyIDFor, conf.Delivery.Workers, metrics, log)

	obs := outbox.NewObservers()

	pipeline.Collections = coll
	pipeline.Audience = aud
	pipeline.Delivery = deliv
	pipeline.Observers = obs

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	deliv.Start(ctx)
	defer deliv.Stop()

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(mware.RequestLogger(log))
	r.Use(chimw.Recoverer)

	pipeline.Mount(r)
	r.Handle("/metrics", promhttp.Handler())
	r.Handle("/events", eventsocket.New(obs, log))

	log.Info("listening", zap.String("addr", ":3000"), zap.String("base_url", baseURL))
	if err := http.ListenAndServe(":3000", r); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func buildStore(conf *Config, log *zap.Logger) (store.ActivityStore, error) {
	if conf.Store.Postgres.DSN == "" {
		log.Warn("no postgres dsn configured, running on the in-memory store")
		return store.NewMemoryStore(), nil
	}
	return store.NewPostgresStore(context.Background(), conf.Store.Postgres.DSN)
}

func buildCache(conf *Config, log *zap.Logger) *actorresolver.Cache {
	if conf.Cache.Redis.Addr == "" {
		log.Warn("no redis address configured, actor resolver cache is process-local only")
		return actorresolver.NewCache(nil)
	}
	client := redis.NewClient(&redis.Options{Addr: conf.Cache.Redis.Addr})
	return actorresolver.NewCache(client)
}

// provisionLocalActors seeds the actor record and signing key for each
// statically configured local actor. Real account creation is out of
// scope; this exists so the module has something to federate from on
// first boot.
func provisionLocalActors(ctx context.Context, s store.ActivityStore, keys *keystore.Registry, baseURL string, usernames []string) error {
	for _, username := range usernames {
		keyStore, err := keys.Provision(username)
		if err != nil {
			return err
		}

		actorIRI := iri.Actor(baseURL, username)
		if _, err := s.GetObject(ctx, actorIRI); err == nil {
			continue
		}

		obj := &models.Object{
			ID:                actorIRI,
			Type:              []string{"Person"},
			PreferredUsername: []string{username},
			Inbox:             []string{iri.Inbox(baseURL, username)},
			Outbox:            []string{iri.Outbox(baseURL, username)},
			Followers:         []string{iri.Followers(baseURL, username)},
			Following:         []string{iri.Following(baseURL, username)},
			Liked:             []string{iri.Liked(baseURL, username)},
			PublicKey: &models.PublicKey{
				ID:           actorIRI + "#main-key",
				Owner:        actorIRI,
				PublicKeyPem: string(keyStore.PubKeyPem()),
			},
			Local: true,
		}
		if err := s.SaveObject(ctx, obj); err != nil {
			return err
		}
	}
	return nil
}
