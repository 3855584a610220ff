package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/gogogo1024/campus-desk/internal/ai/chain"
	"github.com/gogogo1024/campus-desk/internal/auth"
	"github.com/gogogo1024/campus-desk/internal/chatbot"
	"github.com/gogogo1024/campus-desk/internal/common"
	"github.com/gogogo1024/campus-desk/internal/helpdesk"
	"github.com/gogogo1024/campus-desk/internal/kb"
	"github.com/gogogo1024/campus-desk/internal/kb/esrepo"
	"github.com/gogogo1024/campus-desk/internal/queue"
	"github.com/gogogo1024/campus-desk/internal/refdata"
	"github.com/gogogo1024/campus-desk/internal/sqlrepo"
	"github.com/gogogo1024/campus-desk/services/helpdesk/internal/router"
)

// components holds everything BuildServer wires, plus what has to be released on shutdown.
type components struct {
	deps    router.Deps
	closers []func()
}

func (c *components) onClose(fn func()) { c.closers = append(c.closers, fn) }

// close releases in reverse order of acquisition.
func (c *components) close(ctx context.Context) {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

func (c *components) check(name string, ping func(context.Context) error) {
	c.deps.Checks = append(c.deps.Checks, router.Check{Name: name, Ping: ping})
}

func buildComponents(ctx context.Context, cfg *common.Config) (_ *components, err error) {
	c := &components{}
	defer func() {
		if err != nil {
			c.close(ctx)
		}
	}()

	repo, err := openStore(ctx, cfg, c)
	if err != nil {
		return nil, err
	}
	c.check("store", repo.Ping)

	var rdb *redis.Client
	if cfg.LockBackend == "redis" || cfg.SessionBackend == "redis" {
		if cfg.RedisAddr == "" {
			return nil, errors.New("redis_addr is required for the redis lock or session backend")
		}
		if rdb, err = queue.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB); err != nil {
			return nil, err
		}
		c.onClose(func() { _ = rdb.Close() })
		c.check("redis", func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}

	ref, err := refdata.Open(cfg.RefDataPath)
	if err != nil {
		return nil, fmt.Errorf("load reference data: %w", err)
	}
	if cfg.RefDataWatch {
		wctx, cancel := context.WithCancel(context.Background())
		c.onClose(cancel)
		if err := ref.Watch(wctx); err != nil {
			return nil, err
		}
	}
	for _, m := range ref.DanglingMappings() {
		common.L().Warn("mapping points at unknown office", zap.String("category", m.Category), zap.String("office", m.OfficeID))
	}

	var qopts []queue.Option
	if cfg.LockBackend == "redis" {
		qopts = append(qopts, queue.WithLocker(queue.NewRedisLocker(rdb, cfg.LockTTL)))
	}
	queues := queue.NewManager(repo, ref, qopts...)
	if cfg.RenumberCron != "" {
		sw, err := queue.NewSweeper(queues, cfg.RenumberCron)
		if err != nil {
			return nil, err
		}
		sw.Start()
		c.onClose(sw.Stop)
	}
	tickets := helpdesk.NewService(repo, queues, ref)

	aiCfg := chain.LoadAIConfigFromEnv(cfg.AIProvider)
	faq, err := openFAQ(ctx, cfg, chain.NewEmbeddingChainFromConfig(aiCfg), c)
	if err != nil {
		return nil, err
	}

	var sessions chatbot.SessionStore
	if cfg.SessionBackend == "redis" {
		sessions = chatbot.NewRedisSessionStore(rdb, cfg.SessionTTL)
	} else {
		mem := chatbot.NewMemorySessionStore(cfg.SessionTTL)
		c.onClose(sweepSessions(mem, time.Minute))
		sessions = mem
	}
	chat := chain.NewChatChainFromConfig(aiCfg)
	common.L().Info("ai provider selected", zap.String("chat", chat.Provider()))

	authMW, err := authMiddleware(cfg)
	if err != nil {
		return nil, err
	}

	c.deps.Tickets = tickets
	c.deps.Queues = queues
	c.deps.Ref = ref
	c.deps.FAQ = faq
	c.deps.Bot = chatbot.New(ref, faq, tickets, chat, sessions)
	c.deps.Auth = authMW
	return c, nil
}

func openStore(ctx context.Context, cfg *common.Config, c *components) (common.TicketRepo, error) {
	var driver string
	switch cfg.StoreBackend {
	case "", common.StoreMemory:
		return common.NewMemoryTicketRepo(), nil
	case common.StoreSQLite:
		driver = sqlrepo.DriverSQLite
	case common.StorePostgres:
		driver = sqlrepo.DriverPostgres
	default:
		return nil, fmt.Errorf("unknown store_backend %q", cfg.StoreBackend)
	}
	r, err := sqlrepo.Open(ctx, driver, cfg.DBDSN)
	if err != nil {
		return nil, err
	}
	c.onClose(func() { _ = r.Close() })
	return r, nil
}

// openFAQ picks the FAQ backend and loads the seed file. An ES backend that cannot be created
// falls back to memory and reports degraded readiness.
func openFAQ(ctx context.Context, cfg *common.Config, emb kb.Embedder, c *components) (*kb.Base, error) {
	var repo kb.Repo
	if cfg.KBBackend == "es" {
		es, err := esrepo.New(esrepo.Config{
			Addresses: cfg.EsAddressesOrDefault(),
			Index:     cfg.ESIndex,
			Username:  cfg.ESUsername,
			Password:  cfg.ESPassword,
		})
		if err != nil {
			common.L().Warn("es init failed, using memory faq", zap.Error(err))
			initErr := err
			c.check("es", func(context.Context) error { return fmt.Errorf("init failed: %w", initErr) })
		} else {
			repo = es
			c.check("es", es.Ping)
			c.deps.KBInfo = es.Info
		}
	}
	if repo == nil {
		repo = kb.NewMemoryRepo()
	}
	base := kb.NewBase(repo, kb.WithVectorIndex(kb.NewVectorIndex(emb, 0)))

	entries, err := kb.LoadFile(cfg.FAQPath)
	if err != nil {
		return nil, fmt.Errorf("load faq seed: %w", err)
	}
	if len(entries) > 0 {
		n, err := base.Load(ctx, entries)
		if err != nil {
			// the service can run without seeded answers
			common.L().Warn("faq seed incomplete", zap.Int("loaded", n), zap.Error(err))
		} else {
			common.L().Info("faq seeded", zap.Int("entries", n), zap.String("path", cfg.FAQPath))
		}
	}
	return base, nil
}

func sweepSessions(m *chatbot.MemorySessionStore, every time.Duration) func() {
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				if n := m.Sweep(); n > 0 {
					common.L().Debug("chat sessions expired", zap.Int("count", n))
				}
			}
		}
	}()
	return func() { close(done) }
}

func authMiddleware(cfg *common.Config) (app.HandlerFunc, error) {
	if cfg.AuthDisabled {
		p, err := auth.ParsePrincipal(cfg.DevPrincipal)
		if err != nil {
			return nil, err
		}
		common.L().Warn("authentication disabled", zap.String("principal", p.UserID), zap.String("role", p.Role))
		return auth.RequireAuth(nil, &p), nil
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("jwt_secret is required unless auth_disabled is set")
	}
	return auth.RequireAuth(auth.NewJWTManager(cfg.JWTSecret, cfg.JWTTTL), nil), nil
}
