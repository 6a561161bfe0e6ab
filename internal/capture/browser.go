package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
)

// Browser renders a public URL to a full-page PNG.
type Browser interface {
	// Capture screenshots the page. minimal disables JS and images, the
	// degraded mode used after repeated failures.
	Capture(ctx context.Context, pageURL string, minimal bool) ([]byte, error)
}

// ChromeBrowser implements Browser on headless Chrome via chromedp.
type ChromeBrowser struct {
	width, height int
	loadTimeout   time.Duration
}

// NewChromeBrowser creates a browser with a fixed viewport.
func NewChromeBrowser(width, height int, loadTimeout time.Duration) *ChromeBrowser {
	return &ChromeBrowser{width: width, height: height, loadTimeout: loadTimeout}
}

// Capture implements Browser. Every chrome process started here is
// torn down before return on all paths.
func (b *ChromeBrowser) Capture(ctx context.Context, pageURL string, minimal bool) ([]byte, error) {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.WindowSize(b.width, b.height),
		chromedp.Flag("hide-scrollbars", true),
	)
	if minimal {
		opts = append(opts, chromedp.Flag("blink-settings", "imagesEnabled=false"))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()
	runCtx, cancelRun := context.WithTimeout(browserCtx, b.loadTimeout)
	defer cancelRun()

	actions := []chromedp.Action{
		chromedp.EmulateViewport(int64(b.width), int64(b.height)),
	}
	if minimal {
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			return emulation.SetScriptExecutionDisabled(true).Do(ctx)
		}))
	}
	actions = append(actions, chromedp.Navigate(pageURL))
	if minimal {
		// Without JS there is nothing to wait for beyond document load.
		actions = append(actions, chromedp.Sleep(2*time.Second))
	} else {
		actions = append(actions, chromedp.WaitVisible("article", chromedp.ByQuery))
	}

	var png []byte
	actions = append(actions, chromedp.FullScreenshot(&png, 90))

	if err := chromedp.Run(runCtx, actions...); err != nil {
		return nil, fmt.Errorf("rendering %s: %w", pageURL, err)
	}
	return png, nil
}

// Pool bounds the number of concurrently open browsers; each is
// memory-heavy enough that the default is 2.
type Pool struct {
	slots chan struct{}
}

// NewPool creates a pool of the given size.
func NewPool(size int) *Pool {
	if size < 1 {
		size = 1
	}
	p := &Pool{slots: make(chan struct{}, size)}
	for i := 0; i < size; i++ {
		p.slots <- struct{}{}
	}
	return p
}

// With runs fn holding one pool slot. The slot is returned on every
// exit, including panic.
func (p *Pool) With(ctx context.Context, fn func() error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.slots:
	}
	defer func() { p.slots <- struct{}{} }()
	return fn()
}
