package rules

import (
	"fmt"
	"testing"

	"github.com/charmbracelet/log"
)

func TestClassResolver_Builtin(t *testing.T) {
	r, err := NewClassResolver(0, log.Default())
	if err != nil {
		t.Fatalf("NewClassResolver failed: %v", err)
	}

	chain, ok := r.Ancestry("any", "android.widget.CheckBox")
	if !ok {
		t.Fatal("Expected CheckBox to resolve")
	}
	want := []string{
		"android.widget.CheckBox",
		ClassCompoundButton,
		"android.widget.Button",
		"android.widget.TextView",
		"android.view.View",
		"java.lang.Object",
	}
	if len(chain) != len(want) {
		t.Fatalf("Expected %v, got %v", want, chain)
	}
	for i := range want {
		if chain[i] != want[i] {
			t.Errorf("Position %d: expected %s, got %s", i, want[i], chain[i])
		}
	}

	if r.IsSubclass("any", "android.widget.EditText", ClassCompoundButton) {
		t.Error("Expected EditText not to be a CompoundButton")
	}
}

func TestClassResolver_InstallAndUninstall(t *testing.T) {
	r, err := NewClassResolver(4, log.Default())
	if err != nil {
		t.Fatalf("NewClassResolver failed: %v", err)
	}

	if r.IsSubclass("com.x", "com.x.Switch", ClassCompoundButton) {
		t.Error("Expected unknown class to fail closed")
	}

	r.Install("com.x", map[string]string{"com.x.Switch": ClassCompoundButton})
	if !r.IsSubclass("com.x", "com.x.Switch", ClassCompoundButton) {
		t.Error("Expected installed class to resolve after install")
	}
	if r.IsSubclass("com.y", "com.x.Switch", ClassCompoundButton) {
		t.Error("Expected class to be private to its source")
	}

	r.Uninstall("com.x")
	if r.IsInstalled("com.x") {
		t.Error("Expected com.x to be uninstalled")
	}
	if r.IsSubclass("com.x", "com.x.Switch", ClassCompoundButton) {
		t.Error("Expected cached ancestry to be dropped on uninstall")
	}
}

func TestClassResolver_Cycle(t *testing.T) {
	r, err := NewClassResolver(0, log.Default())
	if err != nil {
		t.Fatalf("NewClassResolver failed: %v", err)
	}
	r.Install("loop", map[string]string{"a": "b", "b": "a"})

	chain, ok := r.Ancestry("loop", "a")
	if !ok || len(chain) != 2 {
		t.Errorf("Expected a two-element chain, got %v (ok=%v)", chain, ok)
	}
}

func TestClassResolver_StaleMissNotCached(t *testing.T) {
	r, err := NewClassResolver(0, log.Default())
	if err != nil {
		t.Fatalf("NewClassResolver failed: %v", err)
	}

	// A lookup that resolved before Install must not record its miss.
	r.mu.RLock()
	gen := r.gen
	chain := r.resolveLocked("com.x", "com.x.Switch")
	r.mu.RUnlock()
	if chain != nil {
		t.Fatalf("Expected miss before install, got %v", chain)
	}

	r.Install("com.x", map[string]string{"com.x.Switch": ClassCompoundButton})
	r.remember("com.x|com.x.Switch", gen, chain)

	if !r.IsSubclass("com.x", "com.x.Switch", ClassCompoundButton) {
		t.Error("Expected installed class to resolve despite the earlier miss")
	}
}

func TestClassResolver_MissesAreBounded(t *testing.T) {
	r, err := NewClassResolver(2, log.Default())
	if err != nil {
		t.Fatalf("NewClassResolver failed: %v", err)
	}

	for i := 0; i < 10; i++ {
		if _, ok := r.Ancestry("com.x", fmt.Sprintf("com.x.Unknown%d", i)); ok {
			t.Fatalf("Expected unknown class %d to miss", i)
		}
	}
	if got := r.cache.Len(); got > 2 {
		t.Errorf("Expected at most 2 cached entries, got %d", got)
	}

	if _, ok := r.Ancestry("com.x", "com.x.Unknown9"); ok {
		t.Error("Expected cached miss to stay a miss")
	}
}
