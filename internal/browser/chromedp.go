package browser

import (
	"context"
	"fmt"

	"github.com/chromedp/chromedp"
)

const userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Chrome drives a locally spawned Chrome via the DevTools protocol.
type Chrome struct {
	allocCtx context.Context
	cancel   context.CancelFunc
}

var _ Browser = (*Chrome)(nil)

// NewChrome configures a Chrome exec allocator. The browser process itself is
// started lazily on the first NewPage call.
func NewChrome(headless bool) *Chrome {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("lang", "ko-KR"),
		chromedp.WindowSize(1920, 1080),
		chromedp.UserAgent(userAgent),
	)
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	return &Chrome{allocCtx: allocCtx, cancel: cancel}
}

// NewPage opens a fresh tab.
func (c *Chrome) NewPage(ctx context.Context) (Page, error) {
	tabCtx, tabCancel := chromedp.NewContext(c.allocCtx)
	// Run with no actions to force browser startup so failures surface here.
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		return nil, fmt.Errorf("start chrome tab: %w", err)
	}
	return &chromePage{ctx: tabCtx, cancel: tabCancel}, nil
}

// Close tears down the allocator and every tab spawned from it.
func (c *Chrome) Close() {
	c.cancel()
}

type chromePage struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func (p *chromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx := p.ctx
	if deadline, ok := ctx.Deadline(); ok {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithDeadline(p.ctx, deadline)
		defer cancel()
	}
	return chromedp.Run(runCtx, actions...)
}

func (p *chromePage) Navigate(ctx context.Context, url string) error {
	if err := p.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (p *chromePage) WaitVisible(ctx context.Context, selector string) error {
	if err := p.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("wait visible %q: %w", selector, err)
	}
	return nil
}

func (p *chromePage) Click(ctx context.Context, selector string) error {
	if err := p.run(ctx, chromedp.Click(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("click %q: %w", selector, err)
	}
	return nil
}

func (p *chromePage) Fill(ctx context.Context, selector, value string) error {
	if err := p.run(ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.SetValue(selector, value, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("fill %q: %w", selector, err)
	}
	return nil
}

func (p *chromePage) Evaluate(ctx context.Context, expr string, out interface{}) error {
	var action chromedp.Action
	if out == nil {
		var discard interface{}
		action = chromedp.Evaluate(expr, &discard)
	} else {
		action = chromedp.Evaluate(expr, out)
	}
	if err := p.run(ctx, action); err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	return nil
}

func (p *chromePage) Content(ctx context.Context) (string, error) {
	var html string
	if err := p.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("page content: %w", err)
	}
	return html, nil
}

func (p *chromePage) Text(ctx context.Context, selector string) (string, error) {
	var text string
	if err := p.run(ctx, chromedp.Text(selector, &text, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("text %q: %w", selector, err)
	}
	return text, nil
}

// Frames lists iframe targets attached to the browser. Cross-origin frames
// run out of process, so they are reachable only as separate targets, not
// through the main document's DOM.
func (p *chromePage) Frames(ctx context.Context) ([]Frame, error) {
	infos, err := chromedp.Targets(p.ctx)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	var frames []Frame
	for _, info := range infos {
		if info.Type != "iframe" {
			continue
		}
		fctx, fcancel := chromedp.NewContext(p.ctx, chromedp.WithTargetID(info.TargetID))
		frames = append(frames, &chromeFrame{ctx: fctx, cancel: fcancel, url: info.URL})
	}
	return frames, nil
}

func (p *chromePage) Close() {
	p.cancel()
}

type chromeFrame struct {
	ctx    context.Context
	cancel context.CancelFunc
	url    string
}

func (f *chromeFrame) URL() string { return f.url }

func (f *chromeFrame) Evaluate(ctx context.Context, expr string, out interface{}) error {
	runCtx := f.ctx
	if deadline, ok := ctx.Deadline(); ok {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithDeadline(f.ctx, deadline)
		defer cancel()
	}
	var action chromedp.Action
	if out == nil {
		var discard interface{}
		action = chromedp.Evaluate(expr, &discard)
	} else {
		action = chromedp.Evaluate(expr, out)
	}
	if err := chromedp.Run(runCtx, action); err != nil {
		return fmt.Errorf("frame evaluate: %w", err)
	}
	return nil
}

func (f *chromeFrame) Close() {
	f.cancel()
}
