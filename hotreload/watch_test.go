package hotreload

import (
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/tools/txtar"
)

// patchModuleFixture is a tiny multi-file description of a patch
// module's source tree, packed with txtar so multiple named files live
// in one literal. Nothing here is actually compiled -- Watch only cares
// about file system events on the built artifact -- but archiving the
// source+manifest together keeps the fixture self-describing.
const patchModuleFixture = `
-- patch.cpp --
extern "C" PatchSymbol* jank_patch_symbols_0(int *out_count) {
  *out_count = 1;
  return nullptr;
}
-- manifest.txt --
symbol: jank_patch_symbols_0
qualified_name: user/patched-fn
arity: 1
`

func writeFixture(t *testing.T, dir string) map[string][]byte {
	t.Helper()
	arc := txtar.Parse([]byte(patchModuleFixture))
	files := map[string][]byte{}
	for _, f := range arc.Files {
		path := filepath.Join(dir, f.Name)
		if err := os.WriteFile(path, f.Data, 0640); err != nil {
			t.Fatalf("write fixture file %s: %v", f.Name, err)
		}
		files[f.Name] = f.Data
	}
	return files
}

func TestPatchModuleFixtureUnpacksExpectedFiles(t *testing.T) {
	dir := t.TempDir()
	files := writeFixture(t, dir)
	if _, ok := files["patch.cpp"]; !ok {
		t.Fatalf("expected patch.cpp in fixture")
	}
	if _, ok := files["manifest.txt"]; !ok {
		t.Fatalf("expected manifest.txt in fixture")
	}
}

func TestWatcherIgnoresNonPatchFiles(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir)
	r := New()
	w, err := Watch(r, dir, nil)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer w.Close()

	if isPatchModule(filepath.Join(dir, "manifest.txt")) {
		t.Fatalf("manifest.txt must not be treated as a patch module")
	}
	if !isPatchModule(filepath.Join(dir, "patch.so")) {
		t.Fatalf("patch.so must be treated as a patch module")
	}
}
