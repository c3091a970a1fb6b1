package browser

import (
	"strings"
	"testing"
	"time"

	"github.com/go-rod/rod"
)

func TestQuietScriptWaitsForMutations(t *testing.T) {
	for _, want := range []string{"MutationObserver", "clearTimeout(quiet)", "quietMs", "timeoutMs", "reject("} {
		if !strings.Contains(quietScript, want) {
			t.Fatalf("expected quiet script to contain %q", want)
		}
	}
	if strings.Contains(quietScript, "networkidle") {
		t.Fatalf("quiet script must not rely on load state")
	}
	if quietWindow <= 0 {
		t.Fatalf("expected a positive quiet window")
	}
}

func TestObserverScriptQuotesArguments(t *testing.T) {
	script := observerScript("__bind1", `[class="a b"]`)
	if !strings.Contains(script, `document.querySelector("[class=\"a b\"]")`) {
		t.Fatalf("selector not quoted: %s", script)
	}
	if !strings.Contains(script, `window["__bind1"](true)`) {
		t.Fatalf("binding not called: %s", script)
	}
}

func TestBindingNamesAreUnique(t *testing.T) {
	a, b := nextBindingName(), nextBindingName()
	if a == b {
		t.Fatalf("expected distinct binding names, got %s twice", a)
	}
}

func TestRodHandlesCarryPerActionTimeout(t *testing.T) {
	els := rod.Elements{&rod.Element{}, &rod.Element{}, &rod.Element{}}
	handles := newRodHandles(els, 2*time.Second)
	if len(handles) != len(els) {
		t.Fatalf("expected %d handles, got %d", len(els), len(handles))
	}
	for i, h := range handles {
		rh, ok := h.(rodHandle)
		if !ok {
			t.Fatalf("handle %d: unexpected type %T", i, h)
		}
		if rh.el != els[i] {
			t.Fatalf("handle %d: element was rebound to a shared deadline", i)
		}
		if rh.timeout != 2*time.Second {
			t.Fatalf("handle %d: expected 2s timeout, got %s", i, rh.timeout)
		}
	}
}

func TestEngineByName(t *testing.T) {
	if _, err := EngineByName(""); err != nil {
		t.Fatalf("default engine: %v", err)
	}
	if _, err := EngineByName(EngineRod); err != nil {
		t.Fatalf("rod engine: %v", err)
	}
	if _, err := EngineByName("lynx"); err == nil {
		t.Fatalf("expected unknown engine error")
	}
}
