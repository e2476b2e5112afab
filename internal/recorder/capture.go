package recorder

// bindingName is the page-side function the capture script posts events
// through. Start wires it to the recorder's event channel.
const bindingName = "__waldoRecord"

// Event type values produced by the capture script.
const (
	eventClick       = "click"
	eventDoubleClick = "dblclick"
	eventContextMenu = "contextmenu"
	eventInput       = "input"
	eventChange      = "change"
	eventKeyDown     = "keydown"
	eventNavigate    = "navigate"
)

// CapturedOption is one selected option of a recorded select change.
type CapturedOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
	Index int    `json:"index"`
}

// CapturedEvent is the payload the capture script posts for every user
// interaction it observes. Selector is the script's best stable css
// selector for the event target. Seq orders events across the binding's
// per-call goroutines; it survives same-tab navigations through
// sessionStorage.
type CapturedEvent struct {
	Seq       int64            `json:"seq"`
	Type      string           `json:"type"`
	Selector  string           `json:"selector"`
	Tag       string           `json:"tag"`
	InputType string           `json:"inputType"`
	Value     string           `json:"value"`
	Checked   bool             `json:"checked"`
	Key       string           `json:"key"`
	URL       string           `json:"url"`
	Options   []CapturedOption `json:"options"`
}

// captureScript runs in every document of the recorded tab. It listens in
// the capture phase so handlers that stop propagation cannot hide events,
// posts one JSON object per interaction and announces each new document
// with a navigate event. The installed guard keeps the double delivery
// through InjectOnNewDocument plus the initial Evaluate harmless.
const captureScript = `(() => {
  'use strict';
  if (window.__waldoRecorderInstalled) { return; }
  window.__waldoRecorderInstalled = true;

  let seq = 0;
  try { seq = Number(sessionStorage.getItem('__waldoSeq')) || 0; } catch (e) {}

  const post = (ev) => {
    ev.seq = seq++;
    try { sessionStorage.setItem('__waldoSeq', String(seq)); } catch (e) {}
    try { window.__waldoRecord(JSON.stringify(ev)); } catch (e) {}
  };

  const esc = (s) => (window.CSS && CSS.escape) ? CSS.escape(s) : s.replace(/([^a-zA-Z0-9_-])/g, '\\$1');

  const selectorFor = (el) => {
    if (!el || el.nodeType !== 1) { return ''; }
    if (el.id) { return '#' + esc(el.id); }
    const testId = el.getAttribute('data-testid');
    if (testId) { return '[data-testid="' + testId + '"]'; }
    const tag = el.tagName.toLowerCase();
    if (el.name && (tag === 'input' || tag === 'select' || tag === 'textarea' || tag === 'button')) {
      return tag + '[name="' + el.name + '"]';
    }
    const path = [];
    let node = el;
    while (node && node.nodeType === 1 && node.tagName.toLowerCase() !== 'html') {
      if (node.id) { path.unshift('#' + esc(node.id)); break; }
      let nth = 1;
      let sib = node;
      while ((sib = sib.previousElementSibling)) {
        if (sib.tagName === node.tagName) { nth++; }
      }
      path.unshift(node.tagName.toLowerCase() + ':nth-of-type(' + nth + ')');
      node = node.parentElement;
    }
    return path.join(' > ');
  };

  const base = (el) => ({
    selector: selectorFor(el),
    tag: (el && el.tagName) ? el.tagName.toLowerCase() : '',
    inputType: (el && el.tagName && el.tagName.toLowerCase() === 'input') ? (el.type || 'text') : ''
  });

  const mutedInputs = ['checkbox', 'radio', 'file', 'button', 'submit', 'reset', 'image'];

  document.addEventListener('click', (e) => {
    if (e.detail > 1) { return; }
    post(Object.assign({ type: 'click' }, base(e.target)));
  }, true);

  document.addEventListener('dblclick', (e) => {
    post(Object.assign({ type: 'dblclick' }, base(e.target)));
  }, true);

  document.addEventListener('contextmenu', (e) => {
    post(Object.assign({ type: 'contextmenu' }, base(e.target)));
  }, true);

  document.addEventListener('input', (e) => {
    const el = e.target;
    if (!el || !el.tagName) { return; }
    const tag = el.tagName.toLowerCase();
    if (tag !== 'input' && tag !== 'textarea') { return; }
    if (tag === 'input' && mutedInputs.indexOf(el.type) >= 0) { return; }
    post(Object.assign({ type: 'input', value: el.value }, base(el)));
  }, true);

  document.addEventListener('change', (e) => {
    const el = e.target;
    if (!el || !el.tagName) { return; }
    const tag = el.tagName.toLowerCase();
    if (tag === 'select') {
      const opts = [];
      for (const o of el.selectedOptions) {
        opts.push({ value: o.value, label: (o.label || o.text || '').trim(), index: o.index });
      }
      post(Object.assign({ type: 'change', options: opts }, base(el)));
    } else if (tag === 'input' && (el.type === 'checkbox' || el.type === 'radio')) {
      post(Object.assign({ type: 'change', checked: el.checked }, base(el)));
    }
  }, true);

  document.addEventListener('keydown', (e) => {
    if (e.key !== 'Enter' && e.key !== 'Escape' && e.key !== 'Tab') { return; }
    post({ type: 'keydown', key: e.key });
  }, true);

  post({ type: 'navigate', url: location.href });
})();`
