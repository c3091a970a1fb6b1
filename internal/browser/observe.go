package browser

import (
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// quietWindow is how long the document must go without mutations before a
// click's effect counts as rendered.
const quietWindow = 100 * time.Millisecond

// quietScript resolves after quietMs without DOM mutations under body and
// rejects once timeoutMs has passed.
const quietScript = `({ quietMs, timeoutMs }) => new Promise((resolve, reject) => {
  const root = document.body || document.documentElement;
  let quiet;
  const obs = new MutationObserver(() => {
    clearTimeout(quiet);
    quiet = setTimeout(done, quietMs);
  });
  const deadline = setTimeout(() => {
    obs.disconnect();
    clearTimeout(quiet);
    reject(new Error("page did not settle within " + timeoutMs + "ms"));
  }, timeoutMs);
  function done() {
    obs.disconnect();
    clearTimeout(deadline);
    resolve(true);
  }
  obs.observe(root, { childList: true, subtree: true, attributes: true, characterData: true });
  quiet = setTimeout(done, quietMs);
})`

var observerSeq uint64

func nextBindingName() string {
	return "__staffcountChanged" + strconv.FormatUint(atomic.AddUint64(&observerSeq, 1), 10)
}

// observerScript attaches a MutationObserver to the first match of selector
// and forwards every batch of records to the exposed binding. It returns
// false when nothing matches.
func observerScript(binding string, selector string) string {
	return fmt.Sprintf(`() => {
  const target = document.querySelector(%s);
  if (!target) return false;
  window.__staffcountObservers = window.__staffcountObservers || {};
  const obs = new MutationObserver(() => { window[%s](true); });
  obs.observe(target, { childList: true, subtree: true, characterData: true });
  window.__staffcountObservers[%s] = obs;
  return true;
}`, strconv.Quote(selector), strconv.Quote(binding), strconv.Quote(binding))
}

func disconnectScript(binding string) string {
	return fmt.Sprintf(`() => {
  const all = window.__staffcountObservers || {};
  const obs = all[%s];
  if (obs) { obs.disconnect(); delete all[%s]; }
  return true;
}`, strconv.Quote(binding), strconv.Quote(binding))
}

// gate drops callbacks that arrive after stop.
type gate struct {
	mu     sync.Mutex
	fn     func()
	closed bool
}

func (g *gate) fire() {
	g.mu.Lock()
	fn := g.fn
	closed := g.closed
	g.mu.Unlock()
	if !closed && fn != nil {
		fn()
	}
}

func (g *gate) close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
}
