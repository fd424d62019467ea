// tracker walks a list of pages in a headless browser the way a visitor would, running the
// client session on each page: tracker --server http://localhost:8081 URL...
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"playground-flow/internal/client"
	"playground-flow/internal/client/rodpage"
	"playground-flow/internal/logging"
)

type options struct {
	server     string
	apiKey     string
	ttl        time.Duration
	timeout    time.Duration
	pageWait   time.Duration
	logLevel   string
	showWindow bool
}

func main() {
	var opts options
	cmd := &cobra.Command{
		Use:          "tracker URL...",
		Short:        "Visit pages in a browser and report page views and stories",
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, urls []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, opts, urls)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.server, "server", "http://localhost:8081", "tracking API base URL")
	f.StringVar(&opts.apiKey, "api-key", "", "tracking API key copied into beacons")
	f.DurationVar(&opts.ttl, "authent-ttl", client.DefaultAuthentTTL, "how long fetched session data is cached")
	f.DurationVar(&opts.timeout, "fetch-timeout", client.DefaultFetchTimeout, "session data fetch timeout")
	f.DurationVar(&opts.pageWait, "page-timeout", 30*time.Second, "navigation timeout per page")
	f.StringVar(&opts.logLevel, "log-level", "info", "log level")
	f.BoolVar(&opts.showWindow, "show", false, "run the browser with a window")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, urls []string) error {
	logger, err := logging.New(opts.logLevel, "")
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	controlURL, err := launcher.New().Headless(!opts.showWindow).Launch()
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}
	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect browser: %w", err)
	}
	defer func() { _ = browser.Close() }()

	tab, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return fmt.Errorf("open page: %w", err)
	}
	page := rodpage.New(tab)
	api := client.NewHTTPClient(opts.server)
	session := client.NewSession(page, page, api, api, client.Config{
		APIKey:       opts.apiKey,
		AuthentTTL:   opts.ttl,
		FetchTimeout: opts.timeout,
		Logger:       logger,
	})

	for _, href := range urls {
		if err := visit(ctx, tab, session, href, opts.pageWait); err != nil {
			logger.Warn("visit failed", zap.String("url", href), zap.Error(err))
			continue
		}
		logger.Info("page visited",
			zap.String("url", href),
			zap.Bool("logged", session.IsLogged()),
			zap.String("uid", session.UID()))
	}
	return nil
}

func visit(ctx context.Context, tab *rod.Page, session *client.Session, href string, wait time.Duration) error {
	p := tab.Timeout(wait)
	if err := p.Navigate(href); err != nil {
		return err
	}
	if err := p.WaitLoad(); err != nil {
		return err
	}
	if err := session.Init(ctx); err != nil {
		return err
	}
	return session.Quit(ctx)
}
