package sources

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/TobiSchelling/electwatch/internal/config"
	"github.com/TobiSchelling/electwatch/internal/fetch"
	"github.com/TobiSchelling/electwatch/internal/logger"
)

// Deps are the collaborators shared by all adapters.
type Deps struct {
	Logger logger.Logger
	// Terms supplies names tracked by search and social sources, typically
	// the presidential candidates in the store.
	Terms TermsFunc
	// Transport and Sleep override HTTP and retry waits in tests.
	Transport http.RoundTripper
	Sleep     func(ctx context.Context, d time.Duration) error
	Getenv    func(string) string
	Now       func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = logger.NewNop()
	}
	if d.Getenv == nil {
		d.Getenv = os.Getenv
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

func (d Deps) client(name Source, f config.Fetch, userAgent string, minBody int) *fetch.Client {
	return fetch.New(fetch.Options{
		Delay:      f.Delay,
		Timeout:    f.Timeout,
		MaxRetries: f.MaxRetries,
		UserAgent:  userAgent,
		MinBodyLen: minBody,
		Logger:     d.Logger.With(logger.String("source", string(name))),
		Transport:  d.Transport,
		Sleep:      d.Sleep,
	})
}

// Build creates a Dispatcher with an adapter for every enabled source.
func Build(cfg *config.Config, deps Deps) *Dispatcher {
	deps = deps.withDefaults()
	s := cfg.Sources
	var adapters []Adapter

	if s.Registry.Enabled {
		adapters = append(adapters, NewRegistry(s.Registry, s.UserAgent, deps))
	}
	if s.Judiciary.Enabled {
		adapters = append(adapters, NewJudiciary(s.Judiciary, s.UserAgent, deps))
	}
	if s.Finance.Enabled {
		adapters = append(adapters, NewFinance(s.Finance, s.UserAgent, deps))
	}
	if s.NewsRSS.Enabled {
		adapters = append(adapters, NewNewsRSS(s.NewsRSS, s.UserAgent, deps))
	}
	if s.NewsSearch.Enabled {
		adapters = append(adapters, NewNewsSearch(s.NewsSearch, s.Terms, s.UserAgent, deps))
	}
	if s.YouTube.Enabled {
		adapters = append(adapters, NewYouTube(s.YouTube, s.Terms, s.UserAgent, deps))
	}
	if s.X.Enabled {
		adapters = append(adapters, NewX(s.X, s.Terms, s.UserAgent, deps))
	}
	if s.TikTok.Enabled {
		adapters = append(adapters, NewTikTok(s.TikTok, s.Terms, s.UserAgent, deps))
	}

	return NewDispatcher(adapters...)
}
