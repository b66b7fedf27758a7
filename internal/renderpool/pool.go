// Package renderpool bounds concurrent headless-browser usage to MAX_RENDERS
// instances, offering acquire/release semantics backed by chromedp contexts
// and a startup canary that proves the render path before any job is
// claimed. The acquire channel is the same bounded-capacity idiom the
// teacher's worker pool uses for its goroutine fan-out, generalized here to
// gate browser tabs instead of goroutines.
package renderpool

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

var canaryHTML = `<!DOCTYPE html><html><body><h1>canary</h1></body></html>`

// networkIdleWindow is how long zero requests must be in flight before
// content-setting is considered settled, per spec §4.3 step 4's
// "wait-for-network-idle" contract (bounded overall by the caller's
// 60-second JobTimeout).
const networkIdleWindow = 500 * time.Millisecond

// waitNetworkIdle blocks until no network request has been outstanding for
// idleWindow, tracking Network domain lifecycle events directly since
// chromedp has no built-in "networkidle0" wait condition.
func waitNetworkIdle(idleWindow time.Duration) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}

		var mu sync.Mutex
		inflight := map[network.RequestID]struct{}{}
		lastActivity := time.Now()

		chromedp.ListenTarget(ctx, func(ev interface{}) {
			mu.Lock()
			defer mu.Unlock()
			switch e := ev.(type) {
			case *network.EventRequestWillBeSent:
				inflight[e.RequestID] = struct{}{}
				lastActivity = time.Now()
			case *network.EventLoadingFinished:
				delete(inflight, e.RequestID)
				lastActivity = time.Now()
			case *network.EventLoadingFailed:
				delete(inflight, e.RequestID)
				lastActivity = time.Now()
			}
		})

		ticker := time.NewTicker(idleWindow / 10)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				mu.Lock()
				n := len(inflight)
				idleFor := time.Since(lastActivity)
				mu.Unlock()
				if n == 0 && idleFor >= idleWindow {
					return nil
				}
			}
		}
	})
}

// Options configures the pool.
type Options struct {
	Capacity            int
	JobTimeout          time.Duration
	BrowserExecutable   string
	AllowedHostSuffixes []string
	Log                 *zap.Logger
}

// Pool is a bounded set of headless-browser instances.
type Pool struct {
	opts Options
	log  *zap.Logger

	mu       sync.Mutex
	inUse    int
	capacity int

	sem chan struct{}

	allocCtx    context.Context
	allocCancel context.CancelFunc
}

// Format is the artifact kind the pool renders.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
)

// RenderOpts controls the rasterization for one render call.
type RenderOpts struct {
	Format      Format
	PaperWidth  float64 // inches; A4 default applied by caller
	PaperHeight float64
	Landscape   bool
}

// New constructs a pool without launching any browser yet; instances are
// spawned lazily on first Acquire, up to Capacity.
func New(opts Options) *Pool {
	if opts.Capacity < 1 {
		opts.Capacity = 3
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 60 * time.Second
	}
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
	)
	if opts.BrowserExecutable != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.BrowserExecutable))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	return &Pool{
		opts:        opts,
		log:         opts.Log,
		capacity:    opts.Capacity,
		sem:         make(chan struct{}, opts.Capacity),
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
	}
}

// Stats reports the pool's current utilization for the health endpoint and
// metrics gauge.
type Stats struct {
	Capacity  int
	InUse     int
	Available int
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{Capacity: p.capacity, InUse: p.inUse, Available: p.capacity - p.inUse}
}

// acquire blocks until a pool slot is free; there is no acquire timeout by
// contract, since backpressure already comes from the single-flight Poller.
func (p *Pool) acquire(ctx context.Context) error {
	select {
	case p.sem <- struct{}{}:
		p.mu.Lock()
		p.inUse++
		p.mu.Unlock()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) release() {
	p.mu.Lock()
	p.inUse--
	p.mu.Unlock()
	<-p.sem
}

// Render acquires a pool slot, renders html to the requested format, and
// releases the slot on every exit path. The render is bounded by the pool's
// hard JobTimeout and by the caller's ctx, whichever ends first.
func (p *Pool) Render(ctx context.Context, html string, ropts RenderOpts) ([]byte, error) {
	if err := p.acquire(ctx); err != nil {
		return nil, fmt.Errorf("acquire render slot: %w", err)
	}
	defer p.release()

	tabCtx, tabCancel := chromedp.NewContext(p.allocCtx)
	defer tabCancel()
	tabCtx, timeoutCancel := context.WithTimeout(tabCtx, p.opts.JobTimeout)
	defer timeoutCancel()
	stop := context.AfterFunc(ctx, tabCancel)
	defer stop()

	return p.renderOne(tabCtx, html, ropts)
}

func (p *Pool) renderOne(tabCtx context.Context, html string, ropts RenderOpts) ([]byte, error) {
	allowed := p.opts.AllowedHostSuffixes
	var out []byte

	actions := []chromedp.Action{
		chromedp.EmulateViewport(1240, 1754),
		// Menu HTML is end-user authored: never execute its scripts.
		emulation.SetScriptExecutionDisabled(true),
		fetch.Enable(),
		chromedp.ActionFunc(func(ctx context.Context) error {
			chromedp.ListenTarget(ctx, func(ev interface{}) {
				if ev, ok := ev.(*fetch.EventRequestPaused); ok {
					go func() {
						if requestAllowed(ev.Request.URL, allowed) {
							_ = fetch.ContinueRequest(ev.RequestID).Do(ctx)
						} else {
							_ = fetch.FailRequest(ev.RequestID, network.ErrorReasonBlockedByClient).Do(ctx)
						}
					}()
				}
			})
			return nil
		}),
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			frameTree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(frameTree.Frame.ID, html).Do(ctx)
		}),
		chromedp.WaitReady("body"),
		waitNetworkIdle(networkIdleWindow),
	}

	switch ropts.Format {
	case FormatPDF:
		width, height := ropts.PaperWidth, ropts.PaperHeight
		if width == 0 {
			width, height = 8.27, 11.69 // A4 in inches
		}
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			data, _, err := page.PrintToPDF().
				WithPaperWidth(width).
				WithPaperHeight(height).
				WithLandscape(ropts.Landscape).
				WithPrintBackground(true).
				Do(ctx)
			if err != nil {
				return err
			}
			out = data
			return nil
		}))
	case FormatPNG, FormatJPEG:
		// FullScreenshot emits PNG at quality 100 and JPEG below it.
		quality := 100
		if ropts.Format == FormatJPEG {
			quality = 90
		}
		actions = append(actions, chromedp.FullScreenshot(&out, quality))
	default:
		return nil, fmt.Errorf("renderpool: unsupported format %q", ropts.Format)
	}

	if err := chromedp.Run(tabCtx, actions...); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return out, nil
}

// requestAllowed implements the closed-by-default URL allowlist: data: URLs
// pass, file: URLs are always blocked, and everything else must match a
// configured host suffix.
func requestAllowed(rawURL string, allowedSuffixes []string) bool {
	if strings.HasPrefix(strings.ToLower(rawURL), "data:") {
		return true
	}
	if strings.HasPrefix(strings.ToLower(rawURL), "file:") {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, suffix := range allowedSuffixes {
		if host == strings.ToLower(suffix) || strings.HasSuffix(host, "."+strings.ToLower(suffix)) {
			return true
		}
	}
	return false
}

// Canary renders a fixed minimal page to PDF and verifies the output looks
// like a PDF of nontrivial size, proving the render path works before the
// worker claims any job.
func (p *Pool) Canary(ctx context.Context) error {
	data, err := p.Render(ctx, canaryHTML, RenderOpts{Format: FormatPDF})
	if err != nil {
		return fmt.Errorf("canary render failed: %w", err)
	}
	if len(data) < 256 {
		return fmt.Errorf("canary render produced %d bytes, want >= 256", len(data))
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return fmt.Errorf("canary render missing %%PDF- signature")
	}
	if p.log != nil {
		p.log.Info("render_canary_ok", zap.Int("bytes", len(data)))
	}
	return nil
}

// Probe is the lightweight health-endpoint liveness check: launch a tab,
// navigate to about:blank, and close it, without running a full render.
// Cheaper than Canary so it is safe to call on every /health request.
func (p *Pool) Probe(ctx context.Context) error {
	if err := p.acquire(ctx); err != nil {
		return fmt.Errorf("acquire render slot: %w", err)
	}
	defer p.release()

	tabCtx, tabCancel := chromedp.NewContext(p.allocCtx)
	defer tabCancel()
	probeCtx, cancel := context.WithTimeout(tabCtx, 5*time.Second)
	defer cancel()

	if err := chromedp.Run(probeCtx, chromedp.Navigate("about:blank")); err != nil {
		return fmt.Errorf("probe navigate: %w", err)
	}
	return nil
}

// Close drains the allocator, terminating every browser process the pool
// ever spawned.
func (p *Pool) Close() {
	p.allocCancel()
}
