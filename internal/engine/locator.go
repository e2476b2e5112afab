package engine

import (
	"context"
	"time"
)

// Locator is a chainable handle to elements matching one selector,
// optionally inside a frame chain. Locators are cheap values carrying no
// DOM state; every action re-resolves the selector against the live page.
// The zero cardinality is strict: the selector must match exactly one
// element or the action fails with an ambiguity error.
type Locator struct {
	page  *Page
	chain []Selector
	sel   Selector
	card  Cardinality
}

// First picks the first match instead of requiring exactly one.
func (l *Locator) First() *Locator {
	c := *l
	c.card = CardFirst()
	return &c
}

// Last picks the last match.
func (l *Locator) Last() *Locator {
	c := *l
	c.card = CardLast()
	return &c
}

// Nth picks the zero-based nth match.
func (l *Locator) Nth(n int) *Locator {
	c := *l
	c.card = CardNth(n)
	return &c
}

func (l *Locator) Click(ctx context.Context) error {
	return l.page.current().click(ctx, l.chain, l.sel, l.card, ButtonLeft, 1)
}

func (l *Locator) DoubleClick(ctx context.Context) error {
	return l.page.current().click(ctx, l.chain, l.sel, l.card, ButtonLeft, 2)
}

func (l *Locator) RightClick(ctx context.Context) error {
	return l.page.current().click(ctx, l.chain, l.sel, l.card, ButtonRight, 1)
}

func (l *Locator) Hover(ctx context.Context) error {
	return l.page.current().hover(ctx, l.chain, l.sel, l.card)
}

func (l *Locator) Type(ctx context.Context, text string) error {
	return l.page.current().typeText(ctx, l.chain, l.sel, l.card, text)
}

func (l *Locator) Fill(ctx context.Context, value string) error {
	return l.page.current().fill(ctx, l.chain, l.sel, l.card, value)
}

func (l *Locator) SelectOptions(ctx context.Context, options ...SelectOption) error {
	return l.page.current().selectOptions(ctx, l.chain, l.sel, l.card, options)
}

func (l *Locator) Check(ctx context.Context) error {
	return l.page.current().setChecked(ctx, l.chain, l.sel, l.card, true)
}

func (l *Locator) Uncheck(ctx context.Context) error {
	return l.page.current().setChecked(ctx, l.chain, l.sel, l.card, false)
}

// DragTo drags this element onto the target. Source and target may live in
// different frame chains.
func (l *Locator) DragTo(ctx context.Context, target *Locator) error {
	return l.page.current().dragAndDrop(ctx, l.chain, l.sel, l.card, target.chain, target.sel, target.card)
}

// TextContent reads the element's text.
func (l *Locator) TextContent(ctx context.Context) (string, error) {
	return l.page.current().textContent(ctx, l.chain, l.sel, l.card)
}

// GetAttribute reads an attribute. "value" on form controls reads the live
// control value. A present-but-empty and an absent attribute both yield "".
func (l *Locator) GetAttribute(ctx context.Context, name string) (string, error) {
	return l.page.current().attribute(ctx, l.chain, l.sel, l.card, name)
}

func (l *Locator) IsVisible(ctx context.Context) (bool, error) {
	return l.page.current().state(ctx, l.chain, l.sel, l.card, StateVisible)
}

func (l *Locator) IsDisabled(ctx context.Context) (bool, error) {
	return l.page.current().state(ctx, l.chain, l.sel, l.card, StateDisabled)
}

func (l *Locator) IsEditable(ctx context.Context) (bool, error) {
	return l.page.current().state(ctx, l.chain, l.sel, l.card, StateEditable)
}

func (l *Locator) IsSelected(ctx context.Context) (bool, error) {
	return l.page.current().state(ctx, l.chain, l.sel, l.card, StateSelected)
}

// Frame is a handle into a (possibly nested) same-origin iframe. It offers
// the same verb surface as Page, rooted at the frame's document. The chain
// stores selectors, not element references, so it survives re-renders as
// long as each selector still resolves to exactly one iframe.
type Frame struct {
	page  *Page
	chain []Selector
}

// Frame descends one more iframe level.
func (f *Frame) Frame(selector string) *Frame {
	chain := make([]Selector, len(f.chain), len(f.chain)+1)
	copy(chain, f.chain)
	return &Frame{page: f.page, chain: append(chain, ResolveSelector(selector))}
}

// Locator starts a chainable element handle rooted at this frame.
func (f *Frame) Locator(selector string) *Locator {
	return &Locator{page: f.page, chain: f.chain, sel: ResolveSelector(selector)}
}

// GetByAttribute is sugar for an attribute-equality selector in this frame.
func (f *Frame) GetByAttribute(attr, value string) *Locator {
	l := f.page.GetByAttribute(attr, value)
	l.chain = f.chain
	return l
}

func (f *Frame) Click(ctx context.Context, selector string) error {
	return f.Locator(selector).Click(ctx)
}

func (f *Frame) DoubleClick(ctx context.Context, selector string) error {
	return f.Locator(selector).DoubleClick(ctx)
}

func (f *Frame) RightClick(ctx context.Context, selector string) error {
	return f.Locator(selector).RightClick(ctx)
}

func (f *Frame) Hover(ctx context.Context, selector string) error {
	return f.Locator(selector).Hover(ctx)
}

func (f *Frame) Type(ctx context.Context, selector, text string) error {
	return f.Locator(selector).Type(ctx, text)
}

func (f *Frame) Fill(ctx context.Context, selector, value string) error {
	return f.Locator(selector).Fill(ctx, value)
}

func (f *Frame) Select(ctx context.Context, selector string, options ...SelectOption) error {
	return f.Locator(selector).SelectOptions(ctx, options...)
}

func (f *Frame) Check(ctx context.Context, selector string) error {
	return f.Locator(selector).Check(ctx)
}

func (f *Frame) Uncheck(ctx context.Context, selector string) error {
	return f.Locator(selector).Uncheck(ctx)
}

func (f *Frame) DragAndDrop(ctx context.Context, source, target string) error {
	return f.Locator(source).DragTo(ctx, f.Locator(target))
}

// WaitForSelector waits until selector matches inside this frame. While an
// iframe on the chain is still loading the wait keeps polling instead of
// failing.
func (f *Frame) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	return f.page.current().waitForSelector(ctx, f.chain, ResolveSelector(selector), timeout)
}
