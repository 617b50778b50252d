package browser

import "context"

// Browser creates pages. The production implementation drives a headless
// Chrome; tests substitute scripted fakes.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	Close()
}

// Page is one browser tab. Callers bound slow operations with a deadline on
// the passed context.
type Page interface {
	// Navigate loads the URL and waits for the load event.
	Navigate(ctx context.Context, url string) error
	// WaitVisible blocks until the selector matches a visible node.
	WaitVisible(ctx context.Context, selector string) error
	// Click dispatches a click on the first node matching the selector.
	Click(ctx context.Context, selector string) error
	// Fill sets the value of an input matching the selector and fires the
	// input event.
	Fill(ctx context.Context, selector, value string) error
	// Evaluate runs the JS expression in the page and unmarshals the result
	// into out. Pass nil to discard the result.
	Evaluate(ctx context.Context, expr string, out interface{}) error
	// Content returns the serialized HTML of the main document.
	Content(ctx context.Context) (string, error)
	// Text returns the inner text of the first node matching the selector.
	Text(ctx context.Context, selector string) (string, error)
	// Frames returns the page's subframes, including out-of-process ones.
	// Callers must Close every returned frame.
	Frames(ctx context.Context) ([]Frame, error)
	// Close releases the tab.
	Close()
}

// Frame is one subframe of a page.
type Frame interface {
	URL() string
	Evaluate(ctx context.Context, expr string, out interface{}) error
	Close()
}
