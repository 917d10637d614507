package capture

// ScriptVersion identifies the script set below. Bump it whenever a script's
// arguments or result shape change.
const ScriptVersion = "shotdiff/3"

// Every script is a JavaScript function expression. Results are plain JSON.

// scriptPageExtent returns the full scrollable page size.
const scriptPageExtent = `() => {
	const d = document.documentElement, b = document.body || d;
	return {
		width: Math.max(d.scrollWidth, b.scrollWidth, d.clientWidth),
		height: Math.max(d.scrollHeight, b.scrollHeight, d.clientHeight)
	};
}`

// scriptElementRect reads one element's bounding rect and borders.
// Coordinates are viewport-relative.
const scriptElementRect = `(selector, index) => {
	const el = document.querySelectorAll(selector)[index];
	if (!el) return {found: false};
	const r = el.getBoundingClientRect();
	const cs = window.getComputedStyle(el);
	return {
		found: true,
		tag: el.tagName.toLowerCase(),
		left: r.left,
		top: r.top,
		width: r.right - r.left,
		height: r.bottom - r.top,
		scrollWidth: el.scrollWidth,
		border: {
			top: cs.borderTopWidth, right: cs.borderRightWidth,
			bottom: cs.borderBottomWidth, left: cs.borderLeftWidth
		}
	};
}`

// scriptElementRects reads the bounding rect of every match.
const scriptElementRects = `(selector) => Array.from(document.querySelectorAll(selector)).map(el => {
	const r = el.getBoundingClientRect();
	return {left: r.left, top: r.top, width: r.right - r.left, height: r.bottom - r.top};
})`

// scriptSetVisibility sets style.visibility on every match and returns the
// previous inline values.
const scriptSetVisibility = `(selector, value) => Array.from(document.querySelectorAll(selector)).map(el => {
	const prev = el.style.visibility;
	el.style.visibility = value;
	return prev;
})`

// scriptRestoreVisibility puts back the values returned by scriptSetVisibility.
const scriptRestoreVisibility = `(selector, prev) => {
	Array.from(document.querySelectorAll(selector)).forEach((el, i) => {
		el.style.visibility = i < prev.length ? prev[i] : '';
	});
	return true;
}`

// scriptIsVisibility reports whether every match has the computed visibility.
const scriptIsVisibility = `(selector, value) => Array.from(document.querySelectorAll(selector))
	.every(el => window.getComputedStyle(el).visibility === value)`

// scriptSetOverflow sets the root element overflow and returns the previous value.
const scriptSetOverflow = `(value) => {
	const s = document.documentElement.style, prev = s.overflow;
	s.overflow = value;
	return prev;
}`

// scriptElementScrollInfo reads the scroll geometry of a self-scrolling element.
const scriptElementScrollInfo = `(selector, index) => {
	const el = document.querySelectorAll(selector)[index];
	if (!el) return {found: false};
	const r = el.getBoundingClientRect();
	return {
		found: true,
		clientLeft: r.left + el.clientLeft,
		clientTop: r.top + el.clientTop,
		clientWidth: el.clientWidth,
		clientHeight: el.clientHeight,
		scrollWidth: el.scrollWidth,
		scrollHeight: el.scrollHeight,
		scrollLeft: el.scrollLeft,
		scrollTop: el.scrollTop
	};
}`

// scriptElementScrollTo scrolls a self-scrolling element.
const scriptElementScrollTo = `(selector, index, x, y) => {
	const el = document.querySelectorAll(selector)[index];
	if (!el) return false;
	el.scrollLeft = x;
	el.scrollTop = y;
	return true;
}`

// scriptElementOverflow sets an element's overflow and returns the previous value.
const scriptElementOverflow = `(selector, index, value) => {
	const el = document.querySelectorAll(selector)[index];
	if (!el) return '';
	const prev = el.style.overflow;
	el.style.overflow = value;
	return prev;
}`

// scriptMoveBody shifts the body so page point (x, y) lands at the origin.
// It returns the previous inline styles for scriptRestoreBody.
const scriptMoveBody = `(x, y) => {
	const s = document.body.style;
	const prev = {position: s.position, left: s.left, top: s.top};
	s.position = 'relative';
	s.left = (-x) + 'px';
	s.top = (-y) + 'px';
	return prev;
}`

// scriptRestoreBody puts back the styles returned by scriptMoveBody.
const scriptRestoreBody = `(prev) => {
	const s = document.body.style;
	s.position = prev.position;
	s.left = prev.left;
	s.top = prev.top;
	return true;
}`

var scriptNames = map[string]string{
	scriptPageExtent:        "pageExtent",
	scriptElementRect:       "elementRect",
	scriptElementRects:      "elementRects",
	scriptSetVisibility:     "setVisibility",
	scriptRestoreVisibility: "restoreVisibility",
	scriptIsVisibility:      "isVisibility",
	scriptSetOverflow:       "setOverflow",
	scriptElementScrollInfo: "elementScrollInfo",
	scriptElementScrollTo:   "elementScrollTo",
	scriptElementOverflow:   "elementOverflow",
	scriptMoveBody:          "moveBody",
	scriptRestoreBody:       "restoreBody",
}

// ScriptName returns the name of one of the scripts Session runs, or "" for
// anything else. Fake handles dispatch on it.
func ScriptName(script string) string { return scriptNames[script] }
