// Package chat parses chat command flags and composes the routing engine.
package chat

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/riftwild/chat/internal/app"
	"github.com/riftwild/chat/internal/chat"
	entrypoint "github.com/riftwild/chat/internal/platform/cmd"
	"github.com/riftwild/chat/internal/scheduler"
	"github.com/riftwild/chat/internal/storage"
	"github.com/riftwild/chat/internal/storage/postgres"
	"github.com/riftwild/chat/internal/storage/sqlite"
)

// Config holds chat command configuration.
type Config struct {
	HTTPAddr      string `env:"RIFTWILD_CHAT_HTTP_ADDR"      envDefault:":8086"`
	StorageDriver string `env:"RIFTWILD_CHAT_STORAGE_DRIVER" envDefault:"sqlite"`
	StoragePath   string `env:"RIFTWILD_CHAT_STORAGE_PATH"   envDefault:"chat.db"`
	DatabaseURL   string `env:"RIFTWILD_CHAT_DATABASE_URL"`
	JWTSecret     string `env:"RIFTWILD_CHAT_JWT_SECRET"`
	Workers       int    `env:"RIFTWILD_CHAT_WORKERS"        envDefault:"2"`
	QueueSize     int    `env:"RIFTWILD_CHAT_QUEUE_SIZE"     envDefault:"256"`

	GlobalChannel  string `env:"RIFTWILD_CHAT_GLOBAL_CHANNEL"  envDefault:"global"`
	StaffChannel   string `env:"RIFTWILD_CHAT_STAFF_CHANNEL"   envDefault:"staff"`
	StaffNode      string `env:"RIFTWILD_CHAT_STAFF_NODE"      envDefault:"chat.staff"`
	PrivateChannel string `env:"RIFTWILD_CHAT_PRIVATE_CHANNEL" envDefault:"pm"`
	LogMessages    bool   `env:"RIFTWILD_CHAT_LOG_MESSAGES"    envDefault:"true"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "chat HTTP listen address")
	fs.StringVar(&cfg.StorageDriver, "storage-driver", cfg.StorageDriver, "chat storage driver (sqlite or postgres)")
	fs.StringVar(&cfg.StoragePath, "storage-path", cfg.StoragePath, "sqlite database path")
	fs.StringVar(&cfg.DatabaseURL, "database-url", cfg.DatabaseURL, "postgres connection URL")
	fs.StringVar(&cfg.JWTSecret, "jwt-secret", cfg.JWTSecret, "gateway token signing secret")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "background persistence workers")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// chatStore is the storage surface the engine needs from either driver.
type chatStore interface {
	storage.MessageStore
	storage.ParticipantStore
	storage.ChannelStore
	Close() error
}

func openStore(ctx context.Context, cfg Config) (chatStore, error) {
	switch cfg.StorageDriver {
	case "sqlite":
		return sqlite.Open(cfg.StoragePath)
	case "postgres":
		return postgres.Open(ctx, cfg.DatabaseURL)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

// Run builds the chat engine and serves the gateway until the context ends.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceChat, func(context.Context) error {
		store, err := openStore(ctx, cfg)
		if err != nil {
			return fmt.Errorf("open chat storage: %w", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				log.Printf("close chat storage: %v", err)
			}
		}()

		loop := scheduler.NewLoop()
		pool := scheduler.NewPool(cfg.Workers, cfg.QueueSize)
		defer pool.Close()
		defer loop.Close()
		split := scheduler.NewSplit(loop, pool)

		hub := app.NewHub()
		directory := chat.NewDirectory(hub, hub, nil)
		recorder := chat.NewRecorder(store, store, directory, split, nil)

		registry, err := chat.NewRegistry(chat.RegistryConfig{
			Directory:    directory,
			Recorder:     recorder,
			Participants: store,
			Channels:     store,
		})
		if err != nil {
			return fmt.Errorf("init chat registry: %w", err)
		}

		private, err := wireChannels(ctx, cfg, registry, directory, recorder, store)
		if err != nil {
			return fmt.Errorf("wire chat channels: %w", err)
		}

		serveErr := app.Run(ctx, app.Config{
			HTTPAddr:  cfg.HTTPAddr,
			JWTSecret: cfg.JWTSecret,
		}, app.Engine{
			Registry: registry,
			Recorder: recorder,
			Private:  private,
			Hub:      hub,
			Loop:     loop,
		})

		// HTTP shutdown does not wait for hijacked websocket connections, so
		// sweep any participants whose connection handlers never unwound.
		var abandoned map[uuid.UUID]chat.PersistedState
		loop.Do(func() {
			abandoned = registry.DisconnectAll()
		})
		for id, state := range abandoned {
			registry.Persist(context.Background(), id, state)
		}

		if serveErr != nil {
			return fmt.Errorf("serve chat: %w", serveErr)
		}
		return nil
	})
}

// wireChannels builds the default channel set and records the definitions so
// operators can inspect them through storage. Definition persistence is best
// effort; the engine keeps running without it.
func wireChannels(ctx context.Context, cfg Config, registry *chat.Registry, directory *chat.Directory, recorder *chat.Recorder, channels storage.ChannelStore) (*chat.PrivateChannel, error) {
	globalSettings := chat.NewSettings()
	globalSettings.SetLogged(cfg.LogMessages)
	global, err := chat.NewGlobalChannel("", cfg.GlobalChannel, directory, globalSettings, recorder, nil)
	if err != nil {
		return nil, fmt.Errorf("build global channel: %w", err)
	}
	if err := registry.SetGlobal(global); err != nil {
		return nil, err
	}

	staffSettings := chat.NewSettings()
	staffSettings.SetLogged(cfg.LogMessages)
	staff, err := chat.NewStaffChannel("", cfg.StaffChannel, directory, cfg.StaffNode, staffSettings, recorder, nil)
	if err != nil {
		return nil, fmt.Errorf("build staff channel: %w", err)
	}
	if err := registry.AddChannel(staff); err != nil {
		return nil, err
	}

	privateSettings := chat.NewSettings()
	privateSettings.SetLogged(cfg.LogMessages)
	private, err := chat.NewPrivateChannel("", cfg.PrivateChannel, directory, privateSettings, recorder, nil)
	if err != nil {
		return nil, fmt.Errorf("build private channel: %w", err)
	}
	if err := registry.AddChannel(private); err != nil {
		return nil, err
	}

	if channels != nil {
		for _, record := range []storage.ChannelRecord{
			{ID: global.ID(), Name: global.Name(), Kind: "global", Enabled: global.Enabled()},
			{ID: staff.ID(), Name: staff.Name(), Kind: "staff", Enabled: staff.Enabled()},
			{ID: private.ID(), Name: private.Name(), Kind: "private", Enabled: private.Enabled()},
		} {
			if err := channels.PutChannel(ctx, record); err != nil {
				log.Printf("chat: persist channel definition %q: %v", record.Name, err)
			}
		}
	}
	return private, nil
}
