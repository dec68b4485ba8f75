// Package mirror implements the three-phase orchestrator of §4.7: direct
// dependencies, descendant metadata (a fixed-point traversal), and
// tarballs. It is the Go analogue of original_source/src/mirror.rs's
// mirror/download_metadata/download_child_metadata/download_packages
// functions, restructured around the teacher's Run-method idiom (one
// exported entry point, sequential phases, a single wrapped error per
// phase).
package mirror

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/a-h/npmmirror/mirrorerr"
	"github.com/a-h/npmmirror/npm/downloader"
	"github.com/a-h/npmmirror/npm/metacache"
	"github.com/a-h/npmmirror/npm/metadata"
	"github.com/a-h/npmmirror/npm/pkgindex"
	"github.com/a-h/npmmirror/npm/pkglock"
	"github.com/a-h/npmmirror/npm/progress"
	"github.com/a-h/npmmirror/npm/rangecache"
	"github.com/a-h/npmmirror/npm/semver"
)

// Options configures a Mirror run.
type Options struct {
	ManifestsPath string
	RegistryURL   string
	Greedy        bool
	Verbose       bool
	Logger        *slog.Logger

	Downloader *downloader.Downloader
	RangeCache *rangecache.Cache
	MetaCache  *metacache.Cache
	Progress   *progress.Progress
}

// Result is the §4.7 MirrorResult: totals read off the Progress counters at
// the end of Phase 3.
type Result struct {
	NewPackages      int64
	NewPackagesBytes int64
}

// Mirror drives the three sequential phases.
type Mirror struct {
	opts Options
	log  *slog.Logger
}

// New constructs a Mirror. All fields of opts must be set by the caller
// (cli.MirrorCmd.Run wires them).
func New(opts Options) *Mirror {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Mirror{opts: opts, log: opts.Logger}
}

// Run executes Phase 1, Phase 2, and Phase 3 in sequence, wrapping any
// phase-local failure per §7's propagation policy.
func (m *Mirror) Run(ctx context.Context) (Result, error) {
	m.opts.Progress.SetStep(1, "Direct deps")
	if err := m.directDeps(ctx); err != nil {
		return Result{}, &mirrorerr.DependenciesError{Err: err}
	}

	m.opts.Progress.SetStep(2, "Descendants")
	if err := m.descendantMetadata(ctx); err != nil {
		return Result{}, &mirrorerr.ChildDependenciesError{Err: err}
	}

	m.opts.Progress.SetStep(3, "Packages")
	result, err := m.packages(ctx)
	if err != nil {
		return Result{}, &mirrorerr.PackagesError{Err: err}
	}

	return result, nil
}

// directDeps implements Phase 1: walk the manifests directory, seed the
// range cache from every manifest file found, and queue a metadata download
// for every package seen for the first time.
//
// A file named "package-lock.json" is treated as a resolved npm lockfile
// (parsed with npm/pkglock, as depot's own dependency walkers do) rather
// than the plain {"dependencies": {...}} manifest format: every pinned
// "name@version" it lists seeds the range cache with a single-version
// range, since a lockfile has already resolved away any range ambiguity.
// Any other file is parsed as a manifest per §6.
func (m *Mirror) directDeps(ctx context.Context) error {
	err := filepath.WalkDir(m.opts.ManifestsPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("%w: %v", mirrorerr.Walk, err)
		}
		if d.IsDir() {
			return nil
		}

		if d.Name() == "package-lock.json" {
			return m.seedFromLockfile(ctx, path)
		}
		return m.seedFromManifest(ctx, path)
	})
	if err != nil {
		return err
	}

	m.opts.Downloader.WaitIdle(ctx)
	return nil
}

func (m *Mirror) seedFromManifest(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %v", mirrorerr.IO, err)
	}

	manifest, err := metadata.ParseManifest(data)
	if err != nil {
		return err
	}

	for name, r := range manifest.Dependencies {
		m.seedPackageRange(ctx, name, r)
	}
	return nil
}

func (m *Mirror) seedFromLockfile(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", mirrorerr.IO, err)
	}
	defer f.Close()

	entries, err := pkglock.Parse(ctx, f)
	if err != nil {
		return fmt.Errorf("%w: %v", mirrorerr.Serde, err)
	}

	for _, entry := range entries {
		name, version, ok := strings.Cut(entry, "@")
		if !ok {
			continue
		}
		// Scoped packages round-trip through pkglock as "@scope/name@version";
		// strings.Cut on the first "@" would split inside the scope, so retry
		// on the last "@" when the first cut leaves an empty name.
		if name == "" {
			last := strings.LastIndex(entry, "@")
			if last <= 0 {
				continue
			}
			name, version = entry[:last], entry[last+1:]
		}
		r, err := semver.ParseRange(version)
		if err != nil {
			if m.opts.Verbose {
				m.log.Debug("skipping unparseable lockfile version", "package", name, "version", version, "error", err)
			}
			continue
		}
		m.seedPackageRange(ctx, name, r)
	}
	return nil
}

func (m *Mirror) seedPackageRange(ctx context.Context, name string, r semver.Range) {
	res := m.opts.RangeCache.Insert(name, r)
	if res.PackageIsNew {
		m.queueMetadata(ctx, name)
	}
}

// descendantMetadata implements Phase 2: a fixed-point traversal over the
// dependency graph, expanding one "round" of the current frontier at a time
// and waiting for the download queue to idle (not drain) between rounds, so
// each round expands against indices whose metadata has actually landed.
func (m *Mirror) descendantMetadata(ctx context.Context) error {
	current := m.opts.RangeCache.Packages()
	var next []string
	visited := make(map[string]struct{})

	for len(current) > 0 || len(next) > 0 {
		if len(current) == 0 {
			current, next = next, nil
			m.opts.Downloader.WaitIdle(ctx)
			continue
		}

		pkg := current[len(current)-1]
		current = current[:len(current)-1]

		idx, ok := m.opts.MetaCache.Get(pkg)
		if !ok {
			if m.opts.Verbose {
				m.log.Debug("unable to read index, tombstoning package", "package", pkg)
			}
			m.opts.RangeCache.Remove(pkg)
			continue
		}

		versions := m.selectVersions(pkg, idx.ParsedVersions())
		for _, v := range versions {
			key := pkg + "@" + v.String()
			if _, seen := visited[key]; seen {
				continue
			}
			visited[key] = struct{}{}

			pos, ok := idx.VersionPosition(v.String())
			if !ok {
				continue
			}
			next = m.populateChildDeps(ctx, idx, idx.DepsByVersion(pos), next)
		}
	}

	return nil
}

// populateChildDeps expands one version's dependency list per §4.7 step 3,
// returning the (possibly extended) next-round frontier. idx is the
// *parent* package's own index: a Tag dependency is resolved against the
// parent's dist-tags, not the dependency's own, matching
// original_source/src/mirror.rs's populate_child_deps exactly (the tag
// names one of the parent's dist-tags; only the resolved version is then
// attributed to the dependency's package).
func (m *Mirror) populateChildDeps(ctx context.Context, idx pkgindex.PackageIndex, deps []pkgindex.IdxDep, next []string) []string {
	for _, dep := range deps {
		depVersion, err := dep.Range.ToDepVersion()
		if err != nil {
			if m.opts.Verbose {
				m.log.Debug("skipping unparseable dependency range", "package", dep.Package, "error", err)
			}
			continue
		}

		switch depVersion.Kind {
		case metadata.KindTag:
			version, ok := idx.VersionByTag(depVersion.Tag)
			if !ok {
				continue
			}
			r, err := semver.ParseRange(version)
			if err != nil {
				if m.opts.Verbose {
					m.log.Debug("skipping unparseable tag-resolved version", "package", dep.Package, "version", version, "error", err)
				}
				continue
			}
			next = m.processVersion(ctx, dep.Package, r, next)
		case metadata.KindOther:
			if m.opts.Verbose {
				m.log.Debug("skipping non-registry dependency", "package", dep.Package, "spec", depVersion.Tag)
			}
			continue
		case metadata.KindSubDep:
			next = m.processVersion(ctx, depVersion.SubDepPackage, depVersion.Range, next)
		default: // KindRange
			next = m.processVersion(ctx, dep.Package, depVersion.Range, next)
		}
	}
	return next
}

// processVersion implements §4.7's "process": insert into the range cache,
// queue a metadata download for a newly seen package, and add the package
// to the next-round frontier when it is new or the range accumulated
// something.
func (m *Mirror) processVersion(ctx context.Context, pkg string, r semver.Range, next []string) []string {
	res := m.opts.RangeCache.Insert(pkg, r)
	if res.PackageIsNew {
		m.queueMetadata(ctx, pkg)
	}
	if (res.PackageIsNew || res.RangeIsNew) && !contains(next, pkg) {
		next = append(next, pkg)
	}
	return next
}

// packages implements Phase 3: for every package still tracked in the
// range cache, choose versions as in Phase 2 and enqueue a tarball download
// for each chosen version's tarball URL, with no checksum (§9: integrity
// metadata is not threaded through to this phase).
func (m *Mirror) packages(ctx context.Context) (Result, error) {
	for _, pkg := range m.opts.RangeCache.Packages() {
		idx, ok := m.opts.MetaCache.Get(pkg)
		if !ok {
			if m.opts.Verbose {
				m.log.Debug("unable to read index for tarball phase", "package", pkg)
			}
			continue
		}

		for _, v := range m.selectVersions(pkg, idx.ParsedVersions()) {
			pos, ok := idx.VersionPosition(v.String())
			if !ok {
				continue
			}
			tarball, ok := idx.TarballByVersion(pos)
			if !ok {
				continue
			}
			m.queueTarball(ctx, pkg, tarball)
		}
	}

	m.opts.Downloader.WaitIdle(ctx)

	files := m.opts.Progress.Files.Load()
	bytes := m.opts.Progress.Bytes.Load()
	return Result{NewPackages: files.Success, NewPackagesBytes: bytes.Success}, nil
}

// selectVersions implements the §4.7 greedy-vs-max-match version selection.
func (m *Mirror) selectVersions(pkg string, versions []semver.Version) []semver.Version {
	if m.opts.Greedy {
		return m.opts.RangeCache.Satisfying(pkg, versions)
	}
	return m.opts.RangeCache.MaxSatisfying(pkg, versions)
}

func (m *Mirror) queueMetadata(ctx context.Context, pkg string) {
	m.opts.Downloader.Queue(ctx, downloader.MetadataRequest{
		URL:        metadataURL(m.opts.RegistryURL, pkg),
		Package:    pkg,
		TargetPath: pkg + "/index.json",
	})
}

func (m *Mirror) queueTarball(ctx context.Context, pkg string, tarball *pkgindex.TarballURL) {
	fetchURL := pkgindex.RebuildURL(tarball, pkg, m.opts.RegistryURL)
	if fetchURL == "" {
		return
	}
	m.opts.Downloader.Queue(ctx, downloader.TarballRequest{
		URL:        fetchURL,
		TargetPath: tarballTargetPath(tarball, pkg, fetchURL),
	})
}

// metadataURL builds the registry metadata URL for a package, encoding the
// "/" in a scoped package name ("@scope/name") per npm registry convention.
func metadataURL(registryURL, pkg string) string {
	return strings.TrimRight(registryURL, "/") + "/" + strings.ReplaceAll(pkg, "/", "%2f")
}

// tarballTargetPath implements §6's on-disk layout for tarballs: the short
// form ("<package>/-/<basename>.tgz") when the index stored a stripped
// basename, otherwise the registry-suffix path preserved verbatim from the
// full URL.
func tarballTargetPath(tarball *pkgindex.TarballURL, pkg, fetchURL string) string {
	if tarball != nil && tarball.Kind == pkgindex.TarballShort {
		return pkg + "/-/" + tarball.Value
	}
	u, err := url.Parse(fetchURL)
	if err != nil {
		return pkg + "/-/" + path.Base(fetchURL)
	}
	return strings.TrimPrefix(u.Path, "/")
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
