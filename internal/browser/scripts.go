// internal/browser/scripts.go
package browser

// networkTrackerJS is installed on every new document. It counts in-flight
// fetch and XHR requests so WaitForPageSettled can tell when the page's own
// network-driven re-renders have finished.
const networkTrackerJS = `(() => {
	if (window.__easyreproPending !== undefined) return;
	window.__easyreproPending = 0;
	const done = () => { window.__easyreproPending = Math.max(0, window.__easyreproPending - 1); };
	if (window.fetch) {
		const origFetch = window.fetch;
		window.fetch = function() {
			window.__easyreproPending++;
			return origFetch.apply(this, arguments).finally(done);
		};
	}
	const origSend = XMLHttpRequest.prototype.send;
	XMLHttpRequest.prototype.send = function() {
		window.__easyreproPending++;
		this.addEventListener('loadend', done, { once: true });
		return origSend.apply(this, arguments);
	};
})()`

// settleProbeJS reports the document state and the tracked request count.
const settleProbeJS = `({
	ready: document.readyState,
	pending: (typeof window.__easyreproPending === 'number') ? window.__easyreproPending : 0
})`

// clearInputJS empties an input and fires the events frameworks listen for.
const clearInputJS = `function() {
	if ('value' in this) {
		this.value = '';
	} else if (this.isContentEditable) {
		this.textContent = '';
	}
	this.dispatchEvent(new Event('input', { bubbles: true }));
	this.dispatchEvent(new Event('change', { bubbles: true }));
}`

// isVisibleJS mirrors what a user can see: rendered, not hidden, with area.
const isVisibleJS = `function() {
	if (!this.isConnected) return false;
	const style = window.getComputedStyle(this);
	if (style.display === 'none' || style.visibility === 'hidden' || style.opacity === '0') return false;
	const rect = this.getBoundingClientRect();
	return rect.width > 0 && rect.height > 0;
}`

// focusTopJS returns focus to the top-level window.
const focusTopJS = `(() => { window.focus(); if (document.activeElement && document.activeElement.blur) { document.activeElement.blur(); } return true; })()`
