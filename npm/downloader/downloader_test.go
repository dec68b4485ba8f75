package downloader

import (
	"bytes"
	"context"
	"crypto/sha512"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/a-h/npmmirror/mirrormetrics"
	"github.com/a-h/npmmirror/npm/checksum"
	"github.com/a-h/npmmirror/npm/metacache"
	"github.com/a-h/npmmirror/npm/progress"
	"github.com/a-h/npmmirror/tree"
)

func newTestDownloader(t *testing.T) (*Downloader, tree.Tree, *metacache.Cache, *progress.Progress) {
	t.Helper()
	tr := tree.NewFileSystem(t.TempDir())
	mc := metacache.New()
	p := progress.New()
	d := New(Options{
		Tree:        tr,
		MetaCache:   mc,
		Progress:    p,
		Metrics:     mirrormetrics.Metrics{},
		RegistryURL: "https://registry.npmjs.org",
	})
	return d, tr, mc, p
}

func TestMetadataDownloadSuccess(t *testing.T) {
	body := `{
		"name": "leaf",
		"dist-tags": {"latest": "1.0.0"},
		"versions": {
			"1.0.0": {"dist": {"tarball": "https://registry.npmjs.org/leaf/-/leaf-1.0.0.tgz"}}
		}
	}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Write([]byte(body))
	}))
	defer srv.Close()

	d, tr, mc, p := newTestDownloader(t)
	ctx := context.Background()
	d.Start(ctx, 2)

	d.Queue(ctx, MetadataRequest{URL: srv.URL, Package: "leaf", TargetPath: "leaf/index.json"})
	d.WaitIdle(ctx)
	if err := d.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if exists, _ := tr.Exists(ctx, "leaf/index.json"); !exists {
		t.Fatalf("expected leaf/index.json to exist")
	}
	if _, ok := mc.Get("leaf"); !ok {
		t.Fatalf("expected metadata cache to contain leaf")
	}

	snap := p.Files.Load()
	if snap.Success != 1 {
		t.Fatalf("expected 1 success, got %+v", snap)
	}
}

func TestMetadataDownload404IsSkipped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	d, _, _, p := newTestDownloader(t)
	ctx := context.Background()
	d.Start(ctx, 1)
	d.Queue(ctx, MetadataRequest{URL: srv.URL, Package: "missing", TargetPath: "missing/index.json"})
	d.WaitIdle(ctx)
	d.Close()

	snap := p.Files.Load()
	if snap.Skipped != 1 {
		t.Fatalf("expected 1 skipped, got %+v", snap)
	}
}

func TestMetadataDownloadOtherErrorIsFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d, _, _, p := newTestDownloader(t)
	ctx := context.Background()
	d.Start(ctx, 1)
	d.Queue(ctx, MetadataRequest{URL: srv.URL, Package: "boom", TargetPath: "boom/index.json"})
	d.WaitIdle(ctx)
	d.Close()

	snap := p.Files.Load()
	if snap.Failed != 1 {
		t.Fatalf("expected 1 failed for a non-404 status, got %+v", snap)
	}
}

func TestTarballChecksumMismatchRemovesPartialFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("actual content"))
	}))
	defer srv.Close()

	d, tr, _, p := newTestDownloader(t)
	ctx := context.Background()
	d.Start(ctx, 1)

	wrongSum := sha512.Sum512([]byte("different content"))
	expected, err := checksum.Parse(hex.EncodeToString(wrongSum[:]))
	if err != nil {
		t.Fatalf("parse checksum: %v", err)
	}

	d.Queue(ctx, TarballRequest{URL: srv.URL, TargetPath: "leaf/-/leaf-1.0.0.tgz", Checksum: &expected})
	d.WaitIdle(ctx)
	d.Close()

	if exists, _ := tr.Exists(ctx, "leaf/-/leaf-1.0.0.tgz"); exists {
		t.Fatalf("expected partial file to be removed on checksum mismatch")
	}
	snap := p.Files.Load()
	if snap.Failed != 1 {
		t.Fatalf("expected 1 failed, got %+v", snap)
	}
}

func TestTarballChecksumSuccess(t *testing.T) {
	content := []byte("tarball bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(content)
	}))
	defer srv.Close()

	sum := sha512.Sum512(content)
	expected, err := checksum.Parse(hex.EncodeToString(sum[:]))
	if err != nil {
		t.Fatalf("parse checksum: %v", err)
	}

	d, tr, _, p := newTestDownloader(t)
	ctx := context.Background()
	d.Start(ctx, 1)
	d.Queue(ctx, TarballRequest{URL: srv.URL, TargetPath: "leaf/-/leaf-1.0.0.tgz", Checksum: &expected})
	d.WaitIdle(ctx)
	d.Close()

	if exists, _ := tr.Exists(ctx, "leaf/-/leaf-1.0.0.tgz"); !exists {
		t.Fatalf("expected tarball to be written")
	}
	snap := p.Files.Load()
	if snap.Success != 1 {
		t.Fatalf("expected 1 success, got %+v", snap)
	}
}

func TestTarballAlreadyExistsIsSkipped(t *testing.T) {
	d, tr, _, p := newTestDownloader(t)
	ctx := context.Background()

	if err := tr.Write(ctx, "leaf/-/leaf-1.0.0.tgz", io.NopCloser(bytes.NewReader([]byte("existing")))); err != nil {
		t.Fatalf("seeding existing file: %v", err)
	}

	d.Start(ctx, 1)
	d.Queue(ctx, TarballRequest{URL: "http://unused.invalid", TargetPath: "leaf/-/leaf-1.0.0.tgz"})
	d.WaitIdle(ctx)
	d.Close()

	snap := p.Files.Load()
	if snap.Skipped != 1 {
		t.Fatalf("expected 1 skipped for an already-present tarball, got %+v", snap)
	}
}

func TestContentAddressedMetadataIdempotence(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("ETag", `"abc123"`)
			w.WriteHeader(http.StatusOK)
			return
		}
		calls++
		w.Header().Set("ETag", `"abc123"`)
		w.Write([]byte(`{"name":"leaf","versions":{"1.0.0":{"dist":{"tarball":"x"}}}}`))
	}))
	defer srv.Close()

	d, tr, _, _ := newTestDownloader(t)
	ctx := context.Background()
	d.Start(ctx, 1)
	d.Queue(ctx, MetadataRequest{URL: srv.URL, Package: "leaf", TargetPath: "leaf/index.json"})
	d.WaitIdle(ctx)
	d.Close()

	if calls != 1 {
		t.Fatalf("expected exactly one GET on the first run, got %d", calls)
	}

	// Second run: a stable ETag file already exists, so no new GET and no
	// new files.success for this metadata URL.
	d2 := New(Options{Tree: tr, MetaCache: metacache.New(), Progress: progress.New(), RegistryURL: "https://registry.npmjs.org"})
	d2.Start(ctx, 1)
	d2.Queue(ctx, MetadataRequest{URL: srv.URL, Package: "leaf", TargetPath: "leaf/index.json"})
	d2.WaitIdle(ctx)
	d2.Close()

	if calls != 1 {
		t.Fatalf("expected no additional GET on the second run, got %d total", calls)
	}
	if snap := d2.opts.Progress.Files.Load(); snap.Success != 0 || snap.Skipped != 1 {
		t.Fatalf("expected the second run to report skipped not success, got %+v", snap)
	}
}
