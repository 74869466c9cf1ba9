// internal/driver/drivertest/page.go
// Package drivertest provides a scripted, in-memory implementation of
// driver.Driver. Tests describe which elements are present and how the page
// reacts to clicks and typing; the fake records every interaction.
package drivertest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/AngelRodriguez8008/EasyRepro/internal/driver"
)

// Reaction mutates the page in response to an interaction.
type Reaction func(p *Page)

// ScriptFunc answers RunScript calls.
type ScriptFunc func(code string, args []any) (any, error)

// Page is a fake browser tab. The zero value is not usable; call NewPage.
type Page struct {
	mu sync.Mutex

	url       string
	visible   map[string]bool
	hidden    map[string]bool
	revealAt  map[string]int
	findCount map[string]int
	onClick   map[string][]Reaction
	onType    map[string][]Reaction
	onNav     []Reaction

	clicks      map[string]int
	typed       map[string][]string
	submits     map[string]int
	attributes  map[string]map[string]string
	navigations []string
	scripts     []string
	settles     int
	frameResets int

	script    ScriptFunc
	settleErr error
	navErr    error
}

// NewPage returns an empty page at about:blank.
func NewPage() *Page {
	return &Page{
		url:        "about:blank",
		visible:    make(map[string]bool),
		hidden:     make(map[string]bool),
		revealAt:   make(map[string]int),
		findCount:  make(map[string]int),
		onClick:    make(map[string][]Reaction),
		onType:     make(map[string][]Reaction),
		clicks:     make(map[string]int),
		typed:      make(map[string][]string),
		submits:    make(map[string]int),
		attributes: make(map[string]map[string]string),
	}
}

var _ driver.Driver = (*Page)(nil)

func key(loc driver.Locator) string { return loc.Strategy.String() + ":" + loc.Selector }

// Show makes loc resolvable. The setup methods do not lock: call them before
// the page is handed to the code under test, or from inside a Reaction.
func (p *Page) Show(loc driver.Locator) *Page {
	p.visible[key(loc)] = true
	delete(p.hidden, key(loc))
	return p
}

// ShowHidden makes loc resolvable but reports it as not visible.
func (p *Page) ShowHidden(loc driver.Locator) *Page {
	p.visible[key(loc)] = true
	p.hidden[key(loc)] = true
	return p
}

// Remove detaches loc. Handles resolved earlier become stale.
func (p *Page) Remove(loc driver.Locator) *Page {
	delete(p.visible, key(loc))
	delete(p.hidden, key(loc))
	return p
}

// ShowAfter makes loc resolvable on the n-th Find for it (1-based).
func (p *Page) ShowAfter(loc driver.Locator, n int) *Page {
	p.revealAt[key(loc)] = n
	return p
}

// SetAttribute sets an attribute value served for loc.
func (p *Page) SetAttribute(loc driver.Locator, name, value string) *Page {
	k := key(loc)
	if p.attributes[k] == nil {
		p.attributes[k] = make(map[string]string)
	}
	p.attributes[k][name] = value
	return p
}

// OnClick registers a reaction run after loc is clicked.
func (p *Page) OnClick(loc driver.Locator, r Reaction) *Page {
	p.onClick[key(loc)] = append(p.onClick[key(loc)], r)
	return p
}

// OnType registers a reaction run after text is typed into loc.
func (p *Page) OnType(loc driver.Locator, r Reaction) *Page {
	p.onType[key(loc)] = append(p.onType[key(loc)], r)
	return p
}

// OnNavigate registers a reaction run after every navigation.
func (p *Page) OnNavigate(r Reaction) *Page {
	p.onNav = append(p.onNav, r)
	return p
}

// WithScript installs the RunScript responder.
func (p *Page) WithScript(fn ScriptFunc) *Page {
	p.script = fn
	return p
}

// FailSettle makes WaitForPageSettled return err.
func (p *Page) FailSettle(err error) *Page {
	p.settleErr = err
	return p
}

// FailNavigate makes Navigate return err.
func (p *Page) FailNavigate(err error) *Page {
	p.navErr = err
	return p
}

// -- recorded interactions --

// Clicks returns how many times loc was clicked.
func (p *Page) Clicks(loc driver.Locator) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clicks[key(loc)]
}

// Typed returns every string typed into loc.
func (p *Page) Typed(loc driver.Locator) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.typed[key(loc)]...)
}

// Submits returns how many times loc was submitted.
func (p *Page) Submits(loc driver.Locator) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.submits[key(loc)]
}

// Finds returns how many times Find or FindAll was called for loc.
func (p *Page) Finds(loc driver.Locator) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.findCount[key(loc)]
}

// Navigations returns the visited URLs in order.
func (p *Page) Navigations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.navigations...)
}

// Scripts returns the evaluated scripts in order.
func (p *Page) Scripts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.scripts...)
}

// Settles returns how many times WaitForPageSettled was called.
func (p *Page) Settles() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.settles
}

// FrameResets returns how many times SwitchToDefaultContent was called.
func (p *Page) FrameResets() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frameResets
}

// -- driver.Driver --

func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	if p.navErr != nil {
		err := p.navErr
		p.mu.Unlock()
		return err
	}
	p.url = url
	p.navigations = append(p.navigations, url)
	reactions := append([]Reaction(nil), p.onNav...)
	for _, r := range reactions {
		r(p)
	}
	p.mu.Unlock()
	return nil
}

func (p *Page) CurrentURL(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *Page) Find(ctx context.Context, loc driver.Locator) (driver.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	k := key(loc)
	p.findCount[k]++
	if n, ok := p.revealAt[k]; ok && p.findCount[k] >= n {
		p.visible[k] = true
		delete(p.revealAt, k)
	}
	if !p.visible[k] {
		return nil, fmt.Errorf("%s: %w", loc, driver.ErrElementNotFound)
	}
	return &Element{page: p, loc: loc}, nil
}

func (p *Page) FindAll(ctx context.Context, loc driver.Locator) ([]driver.Element, error) {
	el, err := p.Find(ctx, loc)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, nil
	}
	return []driver.Element{el}, nil
}

func (p *Page) Click(ctx context.Context, el driver.Element) error { return el.Click(ctx) }

func (p *Page) Type(ctx context.Context, el driver.Element, text string) error {
	return el.Type(ctx, text)
}

func (p *Page) Attribute(ctx context.Context, el driver.Element, name string) (string, bool, error) {
	return el.Attribute(ctx, name)
}

func (p *Page) RunScript(ctx context.Context, code string, args []any, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.scripts = append(p.scripts, code)
	fn := p.script
	p.mu.Unlock()
	if fn == nil {
		return nil
	}
	res, err := fn(code, args)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (p *Page) WaitForPageSettled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.settles++
	return p.settleErr
}

func (p *Page) SwitchToDefaultContent(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frameResets++
	return nil
}

// Element is a handle returned by Page.Find.
type Element struct {
	page *Page
	loc  driver.Locator
}

var _ driver.Element = (*Element)(nil)

// attached must be called with the page lock held.
func (e *Element) attached() error {
	if !e.page.visible[key(e.loc)] {
		return fmt.Errorf("%s: %w", e.loc, driver.ErrStaleElement)
	}
	return nil
}

func (e *Element) Click(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p := e.page
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := e.attached(); err != nil {
		return err
	}
	k := key(e.loc)
	p.clicks[k]++
	for _, r := range append([]Reaction(nil), p.onClick[k]...) {
		r(p)
	}
	return nil
}

func (e *Element) Type(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p := e.page
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := e.attached(); err != nil {
		return err
	}
	k := key(e.loc)
	p.typed[k] = append(p.typed[k], text)
	for _, r := range append([]Reaction(nil), p.onType[k]...) {
		r(p)
	}
	return nil
}

func (e *Element) Submit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p := e.page
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := e.attached(); err != nil {
		return err
	}
	p.submits[key(e.loc)]++
	return nil
}

func (e *Element) Attribute(ctx context.Context, name string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	p := e.page
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := e.attached(); err != nil {
		return "", false, err
	}
	v, ok := p.attributes[key(e.loc)][name]
	return v, ok, nil
}

func (e *Element) Visible(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p := e.page
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := e.attached(); err != nil {
		return false, err
	}
	return !p.hidden[key(e.loc)], nil
}
