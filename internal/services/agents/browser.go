package agents

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/leadwatch/internal/common"
	"github.com/ternarybob/leadwatch/internal/interfaces"
	"github.com/ternarybob/leadwatch/internal/models"
	"github.com/ternarybob/leadwatch/internal/services/extractor"
	"github.com/ternarybob/leadwatch/internal/services/pacing"
)

// SessionCookieName is the LinkedIn authentication cookie
const SessionCookieName = "li_at"

// ErrNoURL is returned when a tab is opened without a URL and no start URL is configured
var ErrNoURL = errors.New("no url to open and no start url configured")

const scrollScript = `window.scrollTo(0, document.body.scrollHeight); document.body.scrollHeight`

// BrowserConfig configures the headless browser agent
type BrowserConfig struct {
	Headless         bool
	UserAgent        string
	SessionCookie    string
	CookieDomain     string
	StartURL         string
	LoadMoreSelector string
	RenderWait       time.Duration
}

type browserTab struct {
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex // one page action at a time
	badge  string     // guarded by Browser.mu
}

// Browser drives tabs of a local Chrome through chromedp and plays the in-page
// agent role itself: it reloads, scrolls, snapshots and extracts.
type Browser struct {
	cfg       BrowserConfig
	extractor *extractor.Extractor
	pacer     pacing.Pacer
	logger    arbor.ILogger

	mu            sync.RWMutex
	handler       interfaces.BatchHandler
	baseCtx       context.Context
	baseCancel    context.CancelFunc
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	tabs          map[string]*browserTab
}

// NewBrowser creates a browser agent. Start must be called before use.
func NewBrowser(cfg BrowserConfig, ext *extractor.Extractor, pacer pacing.Pacer, logger arbor.ILogger) *Browser {
	if pacer == nil {
		pacer = pacing.None{}
	}
	baseCtx, baseCancel := context.WithCancel(context.Background())
	return &Browser{
		cfg:        cfg,
		extractor:  ext,
		pacer:      pacer,
		logger:     logger,
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
		tabs:       make(map[string]*browserTab),
	}
}

// SetHandler wires the receiver of PAGE_LOADED and BATCH_RESULT
func (b *Browser) SetHandler(handler interfaces.BatchHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler = handler
}

func (b *Browser) batchHandler() interfaces.BatchHandler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.handler
}

// Start launches Chrome and injects the session cookie when one is configured
func (b *Browser) Start(ctx context.Context) error {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", b.cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(1366, 900),
	)
	if b.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(b.cfg.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(b.baseCtx, opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	startCtx, cancel := context.WithTimeout(browserCtx, 30*time.Second)
	defer cancel()
	if err := chromedp.Run(startCtx, chromedp.Navigate("about:blank")); err != nil {
		browserCancel()
		allocCancel()
		return fmt.Errorf("failed to start browser: %w", err)
	}

	if b.cfg.SessionCookie != "" {
		err := chromedp.Run(browserCtx,
			network.Enable(),
			chromedp.ActionFunc(func(ctx context.Context) error {
				return network.SetCookie(SessionCookieName, b.cfg.SessionCookie).
					WithDomain(b.cfg.CookieDomain).
					WithPath("/").
					WithSecure(true).
					WithHTTPOnly(true).
					Do(ctx)
			}),
		)
		if err != nil {
			browserCancel()
			allocCancel()
			return fmt.Errorf("failed to inject session cookie: %w", err)
		}
		b.logger.Debug().Str("domain", b.cfg.CookieDomain).Msg("Session cookie injected")
	}

	b.mu.Lock()
	b.allocCancel = allocCancel
	b.browserCtx = browserCtx
	b.browserCancel = browserCancel
	b.mu.Unlock()

	b.logger.Info().Bool("headless", b.cfg.Headless).Msg("Browser agent started")
	return nil
}

// Open creates a tab and navigates it to url (the start URL when empty)
func (b *Browser) Open(ctx context.Context, tabID string, url string) error {
	if url == "" {
		url = b.cfg.StartURL
	}
	if url == "" {
		return ErrNoURL
	}

	b.mu.Lock()
	if b.browserCtx == nil {
		b.mu.Unlock()
		return errors.New("browser not started")
	}
	if _, exists := b.tabs[tabID]; exists {
		b.mu.Unlock()
		return fmt.Errorf("tab %s already open", tabID)
	}
	tabCtx, tabCancel := chromedp.NewContext(b.browserCtx)
	tab := &browserTab{ctx: tabCtx, cancel: tabCancel}
	b.tabs[tabID] = tab
	b.mu.Unlock()

	b.logger.Info().Str("tab_id", tabID).Str("url", url).Msg("Opening browser tab")
	b.navigate(tabID, tab, chromedp.Navigate(url))
	return nil
}

// CloseTab closes one tab
func (b *Browser) CloseTab(tabID string) {
	b.mu.Lock()
	tab, ok := b.tabs[tabID]
	delete(b.tabs, tabID)
	b.mu.Unlock()
	if ok {
		tab.cancel()
	}
}

// Tabs returns the ids of open tabs
func (b *Browser) Tabs() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	tabs := make([]string, 0, len(b.tabs))
	for tabID := range b.tabs {
		tabs = append(tabs, tabID)
	}
	sort.Strings(tabs)
	return tabs
}

func (b *Browser) tab(tabID string) (*browserTab, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	tab, ok := b.tabs[tabID]
	if !ok || tab.ctx.Err() != nil {
		return nil, interfaces.ErrTabGone
	}
	return tab, nil
}

// navigate runs action in the background and reports PAGE_LOADED once the page settled
func (b *Browser) navigate(tabID string, tab *browserTab, action chromedp.Action) {
	common.SafeGo(b.logger, "browser.navigate", func() {
		tab.mu.Lock()
		var location string
		err := chromedp.Run(tab.ctx,
			action,
			chromedp.Sleep(b.cfg.RenderWait),
			chromedp.Location(&location),
		)
		tab.mu.Unlock()

		if err != nil {
			b.logger.Warn().Err(err).Str("tab_id", tabID).Msg("Navigation failed")
			return
		}
		if handler := b.batchHandler(); handler != nil {
			if err := handler.PageLoaded(b.baseCtx, tabID, location); err != nil {
				b.logger.Warn().Err(err).Str("tab_id", tabID).Msg("Page load handling failed")
			}
		}
	})
}

// Reload reloads the tab, opening it first if needed. PAGE_LOADED follows asynchronously.
func (b *Browser) Reload(ctx context.Context, tabID string) error {
	tab, err := b.tab(tabID)
	if errors.Is(err, interfaces.ErrTabGone) {
		b.mu.RLock()
		_, exists := b.tabs[tabID]
		b.mu.RUnlock()
		if !exists {
			return b.Open(ctx, tabID, "")
		}
	}
	if err != nil {
		return err
	}
	b.navigate(tabID, tab, chromedp.Reload())
	return nil
}

// RunBatch runs the batch in the background and reports BATCH_RESULT when done
func (b *Browser) RunBatch(ctx context.Context, tabID string, cmd models.BatchCommand) error {
	tab, err := b.tab(tabID)
	if err != nil {
		return err
	}

	common.SafeGo(b.logger, "browser.runBatch", func() {
		result := b.runBatch(tab, cmd.Filters, cmd.ScrollCount)
		result.BatchID = cmd.BatchID

		handler := b.batchHandler()
		if handler == nil {
			return
		}
		if _, err := handler.HandleBatchResult(b.baseCtx, tabID, result); err != nil {
			b.logger.Warn().Err(err).Str("tab_id", tabID).Msg("Batch result handling failed")
		}
	})
	return nil
}

// Snapshot runs one batch synchronously outside watch mode
func (b *Browser) Snapshot(ctx context.Context, tabID string, filters models.FilterConfig) (*models.BatchResult, error) {
	tab, err := b.tab(tabID)
	if err != nil {
		return nil, err
	}
	result := b.runBatch(tab, filters, filters.ScrollCount)
	if result.Fatal {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrTabGone, result.Error)
	}
	return result, nil
}

// runBatch scrolls the feed, clicks "show more" when present, snapshots the DOM
// and extracts. A dead tab yields a fatal context-invalidated result.
func (b *Browser) runBatch(tab *browserTab, filters models.FilterConfig, scrollCount int) *models.BatchResult {
	tab.mu.Lock()
	defer tab.mu.Unlock()

	for i := 0; i < scrollCount; i++ {
		if err := b.pacer.Pause(tab.ctx); err != nil {
			return invalidated(err)
		}
		if err := chromedp.Run(tab.ctx, chromedp.Evaluate(scrollScript, nil)); err != nil {
			if tab.ctx.Err() != nil {
				return invalidated(err)
			}
			b.logger.Debug().Err(err).Int("iteration", i+1).Msg("Scroll failed")
			continue
		}
		if b.cfg.LoadMoreSelector != "" {
			var clicked bool
			if err := chromedp.Run(tab.ctx, chromedp.Evaluate(clickScript(b.cfg.LoadMoreSelector), &clicked)); err == nil && clicked {
				b.logger.Debug().Int("iteration", i+1).Msg("Clicked load more")
			}
		}
	}

	var html, location string
	err := chromedp.Run(tab.ctx,
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.Location(&location),
	)
	if err != nil {
		if tab.ctx.Err() != nil {
			return invalidated(err)
		}
		return &models.BatchResult{Leads: []models.Lead{}, Error: err.Error()}
	}

	extracted, err := b.extractor.ExtractHTML(html, location, filters)
	if err != nil {
		return &models.BatchResult{Leads: []models.Lead{}, Error: err.Error()}
	}
	return extracted.ToBatchResult()
}

func invalidated(err error) *models.BatchResult {
	return &models.BatchResult{
		Leads:     []models.Lead{},
		Fatal:     true,
		ErrorKind: models.ErrorKindContextInvalidated,
		Error:     err.Error(),
	}
}

func clickScript(selector string) string {
	return fmt.Sprintf(`(() => { const b = document.querySelector(%q); if (b) { b.click(); return true; } return false; })()`, selector)
}

// SetBadge records the badge; a headless tab has nowhere to show it
func (b *Browser) SetBadge(ctx context.Context, tabID string, text string) error {
	tab, err := b.tab(tabID)
	if err != nil {
		return err
	}
	b.mu.Lock()
	tab.badge = text
	b.mu.Unlock()
	b.logger.Debug().Str("tab_id", tabID).Str("badge", text).Msg("Badge updated")
	return nil
}

// Badge returns the tab's last badge text
func (b *Browser) Badge(tabID string) string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if tab, ok := b.tabs[tabID]; ok {
		return tab.badge
	}
	return ""
}

func (b *Browser) Notify(ctx context.Context, tabID string, message string) error {
	b.logger.Warn().Str("tab_id", tabID).Str("notice", message).Msg("Tab notice")
	return nil
}

// Close shuts every tab and the browser
func (b *Browser) Close() {
	b.mu.Lock()
	for tabID, tab := range b.tabs {
		tab.cancel()
		delete(b.tabs, tabID)
	}
	browserCancel, allocCancel := b.browserCancel, b.allocCancel
	b.mu.Unlock()

	if browserCancel != nil {
		browserCancel()
	}
	if allocCancel != nil {
		allocCancel()
	}
	b.baseCancel()
	b.logger.Info().Msg("Browser agent stopped")
}
