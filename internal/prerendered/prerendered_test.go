package prerendered

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestBuildTable_Page(t *testing.T) {
	table, collisions := BuildTable([]string{"a/b.html"}, "")
	if len(collisions) != 0 {
		t.Errorf("collisions = %v", collisions)
	}

	for _, key := range []string{"a/b.html", "/a/b.html", "a/b", "/a/b", "a/b/index", "a/b/index.html", "/a/b/index.html"} {
		if got := table[key]; got != "a/b.html" {
			t.Errorf("table[%q] = %q, want a/b.html", key, got)
		}
	}
	if _, ok := table["/"]; ok {
		t.Error("only the root index answers /")
	}
}

func TestBuildTable_Root(t *testing.T) {
	table, _ := BuildTable([]string{"index.html"}, "")

	for _, key := range []string{"/", "", "index.html", "/index.html", "index", "/index"} {
		if got := table[key]; got != "index.html" {
			t.Errorf("table[%q] = %q, want index.html", key, got)
		}
	}
}

func TestBuildTable_Prefix(t *testing.T) {
	table, _ := BuildTable([]string{"blog/index.html"}, "prerendered")

	if got, ok := table.Lookup("/blog"); !ok || got != "prerendered/blog/index.html" {
		t.Errorf("Lookup(/blog) = %q, %v", got, ok)
	}
	if got := table["blog"]; got != "prerendered/blog/index.html" {
		t.Errorf("table[blog] = %q", got)
	}
}

func TestBuildTable_NonHTML(t *testing.T) {
	table, _ := BuildTable([]string{"feed.xml"}, "")

	want := Table{"feed.xml": "feed.xml", "/feed.xml": "feed.xml"}
	if !reflect.DeepEqual(table, want) {
		t.Errorf("table = %v, want %v", table, want)
	}
}

func TestBuildTable_Collisions(t *testing.T) {
	files := []string{"a.html", "a/index.html"}

	table, collisions := BuildTable(files, "")
	if len(collisions) == 0 {
		t.Fatal("expected collisions between a.html and a/index.html")
	}
	for _, c := range collisions {
		if c.Previous != "a.html" || c.Current != "a/index.html" {
			t.Errorf("collision = %+v", c)
		}
	}
	if table["/a"] != "a/index.html" {
		t.Errorf("last file must win: /a -> %q", table["/a"])
	}
}

func TestBuildTable_OrderIndependentWithoutCollisions(t *testing.T) {
	files := []string{"index.html", "about.html", "blog/post.html", "feed.xml"}
	reversed := []string{"feed.xml", "blog/post.html", "about.html", "index.html"}

	a, _ := BuildTable(files, "p")
	b, _ := BuildTable(reversed, "p")
	if !reflect.DeepEqual(a, b) {
		t.Error("table depends on input order")
	}
}

func TestTable_Redirect(t *testing.T) {
	table, _ := BuildTable([]string{"about.html", "index.html"}, "")

	tests := []struct {
		path     string
		want     string
		redirect bool
	}{
		{"/about/", "/about", true},
		{"/about", "", false},
		{"/missing/", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, ok := table.Redirect(tt.path)
			if ok != tt.redirect || got != tt.want {
				t.Errorf("Redirect(%q) = %q, %v; want %q, %v", tt.path, got, ok, tt.want, tt.redirect)
			}
		})
	}
}

func TestManifest_RoundTrip(t *testing.T) {
	m := NewManifest([]string{"b.html", "a.html"}, "prerendered", "/docs")
	if !reflect.DeepEqual(m.Files, []string{"a.html", "b.html"}) {
		t.Errorf("Files = %v, want sorted", m.Files)
	}

	var buf bytes.Buffer
	if err := WriteManifest(&buf, m); err != nil {
		t.Fatalf("WriteManifest failed: %v", err)
	}
	got, err := ReadManifest(&buf)
	if err != nil {
		t.Fatalf("ReadManifest failed: %v", err)
	}
	if !reflect.DeepEqual(got.Mappings, m.Mappings) || got.Base != "/docs" {
		t.Errorf("manifest changed on the way through: %+v", got)
	}

	if edge := m.EdgeTable(); edge["/a"] != "a.html" {
		t.Errorf("EdgeTable()[/a] = %q", edge["/a"])
	}
}

func TestLoadManifest(t *testing.T) {
	m, err := LoadManifest(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("LoadManifest failed: %v", err)
	}
	if len(m.Mappings) != 0 {
		t.Errorf("Mappings = %v, want empty", m.Mappings)
	}

	name := filepath.Join(t.TempDir(), "bad.json")
	os.WriteFile(name, []byte("{"), 0o644)
	if _, err := LoadManifest(name); err == nil {
		t.Error("expected an error for a malformed manifest")
	}
}

func TestScanDir(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"index.html", "blog/post.html"} {
		full := filepath.Join(dir, filepath.FromSlash(name))
		os.MkdirAll(filepath.Dir(full), 0o755)
		if err := os.WriteFile(full, nil, 0o644); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
	}

	files, err := ScanDir(dir)
	if err != nil {
		t.Fatalf("ScanDir failed: %v", err)
	}
	if !reflect.DeepEqual(files, []string{"blog/post.html", "index.html"}) {
		t.Errorf("files = %v", files)
	}
}
