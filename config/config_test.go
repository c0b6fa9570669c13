package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chazu/jolt/gc"
	"github.com/chazu/jolt/vm"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
[heap]
max-bytes = 1048576
max-records = 4096

[stack]
max-depth = 256

[thread]
address-mode = "narrow"

[gc]
enabled = true
interval = "250ms"

[log]
verbosity = 1
file = "jolt.log"
`)

	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	opts := c.VMOptions()
	if opts.Heap.MaxBytes != 1<<20 || opts.Heap.MaxRecords != 4096 {
		t.Errorf("heap options = %+v", opts.Heap)
	}
	if opts.MaxStackDepth != 256 {
		t.Errorf("max stack depth = %d, want 256", opts.MaxStackDepth)
	}
	if opts.AddressMode != vm.AddressNarrow {
		t.Errorf("address mode = %v, want narrow", opts.AddressMode)
	}

	g := c.GCOptions()
	if !g.Enabled || g.Interval != 250*time.Millisecond {
		t.Errorf("gc options = %+v", g)
	}
	if c.Log.Verbosity != 1 || c.Log.File != "jolt.log" {
		t.Errorf("log = %+v", c.Log)
	}

	abs, _ := filepath.Abs(dir)
	if c.Dir != abs {
		t.Errorf("dir = %q, want %q", c.Dir, abs)
	}
}

func TestLoadKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "[heap]\nmax-records = 10\n")

	c, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	opts := c.VMOptions()
	if opts.MaxStackDepth != vm.DefaultMaxStackDepth {
		t.Errorf("max stack depth = %d, want default", opts.MaxStackDepth)
	}
	if opts.AddressMode != vm.AddressWide {
		t.Errorf("address mode = %v, want wide", opts.AddressMode)
	}
	if g := c.GCOptions(); g.Enabled || g.Interval != gc.DefaultInterval {
		t.Errorf("gc options = %+v", g)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := map[string]string{
		"negative bytes":   "[heap]\nmax-bytes = -1\n",
		"negative records": "[heap]\nmax-records = -1\n",
		"negative depth":   "[stack]\nmax-depth = -4\n",
		"depth over limit": "[stack]\nmax-depth = 4294967296\n",
		"address mode":     "[thread]\naddress-mode = \"medium\"\n",
		"interval syntax":  "[gc]\ninterval = \"soon\"\n",
		"zero interval":    "[gc]\ninterval = \"0s\"\n",
		"verbosity":        "[log]\nverbosity = 9\n",
	}
	for name, content := range tests {
		dir := t.TempDir()
		writeConfig(t, dir, content)
		if _, err := Load(dir); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("%s: err = %v, want ErrInvalidConfig", name, err)
		}
	}
}

func TestLoadParseError(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "[heap\nmax-bytes = ")
	if _, err := Load(dir); err == nil {
		t.Error("expected parse error")
	}
	if _, err := Load(t.TempDir()); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestFindAndLoad(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "[stack]\nmax-depth = 8\n")

	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	c, err := FindAndLoad(nested)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if c.Stack.MaxDepth != 8 {
		t.Errorf("max depth = %d, want 8", c.Stack.MaxDepth)
	}
}

func TestDefaultBuildsWorkingVM(t *testing.T) {
	c := Default()
	if err := c.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	machine := vm.NewVM(c.VMOptions())
	th := machine.NewThread()
	if th.Stack().MaxDepth() != vm.DefaultMaxStackDepth {
		t.Errorf("thread depth limit = %d", th.Stack().MaxDepth())
	}

	col := gc.NewCollector(machine.Heap, nil, c.GCOptions())
	if col.IsEnabled() || col.Interval() != gc.DefaultInterval {
		t.Errorf("collector enabled=%v interval=%v", col.IsEnabled(), col.Interval())
	}
}
