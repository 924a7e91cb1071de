package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/conneroisu/assetkit/internal/assets"
	asseterrors "github.com/conneroisu/assetkit/internal/errors"
	"github.com/conneroisu/assetkit/internal/logging"
	"golang.org/x/sync/singleflight"
)

// Bundle is a compiled group as recorded in the index.
type Bundle struct {
	Fingerprint string           `json:"fingerprint" yaml:"fingerprint"`
	Kind        string           `json:"kind" yaml:"kind"`
	File        string           `json:"file" yaml:"file"`
	Size        int64            `json:"size" yaml:"size"`
	Inputs      []InputSignature `json:"inputs" yaml:"inputs"`
	Chain       string           `json:"chain" yaml:"chain"`
	CompiledAt  time.Time        `json:"compiled_at" yaml:"compiled_at"`

	// URL is the public URL of the bundle file.
	URL string `json:"-" yaml:"url"`
	// Path is the bundle file on disk.
	Path string `json:"-" yaml:"path"`
	// Persisted is false when the bundle could not be written. Content then
	// holds the compiled bytes and WriteErr the cause.
	Persisted bool   `json:"-" yaml:"-"`
	Content   []byte `json:"-" yaml:"-"`
	WriteErr  error  `json:"-" yaml:"-"`
}

// groupPointer records a group's latest compilation. Inputs are the group's
// own file signatures; the bundle entry may list another group's paths when
// both compiled to the same content.
type groupPointer struct {
	Fingerprint string           `json:"fingerprint"`
	Inputs      []InputSignature `json:"inputs,omitempty"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// Options configures a Store.
type Options struct {
	// PublicDir receives <fingerprint>.<ext> bundle files.
	PublicDir string
	// PublicURL is the URL prefix PublicDir is served under.
	PublicURL string
	// IndexDir receives bundle metadata. Defaults to PublicDir/.index.
	IndexDir          string
	Mode              Mode
	FingerprintLength int
	MemoEntries       int
	Logger            logging.Logger
	Metrics           *Metrics
}

// Key is the computed cache address of one group.
type Key struct {
	Kind        assets.Kind
	Fingerprint string
	Group       string
	Chain       string
	Inputs      []InputSignature
}

// Store is the shared bundle cache. It is safe for concurrent use, and
// several processes may share the same directories.
type Store struct {
	opts    Options
	hasher  *Hasher
	logger  logging.Logger
	metrics *Metrics
	flight  singleflight.Group

	mu        sync.RWMutex
	published map[string]*Bundle
	groups    map[string]groupPointer
}

// NewStore creates the store directories and returns a Store.
func NewStore(opts Options) (*Store, error) {
	if opts.PublicDir == "" {
		return nil, asseterrors.NewConfigError("CACHE_PUBLIC_DIR", "public directory is required")
	}
	if opts.IndexDir == "" {
		opts.IndexDir = filepath.Join(opts.PublicDir, ".index")
	}
	if opts.PublicURL == "" {
		opts.PublicURL = "/assets"
	}
	opts.PublicURL = strings.TrimRight(opts.PublicURL, "/")
	if opts.Mode == "" {
		opts.Mode = ModeContent
	}
	if opts.FingerprintLength == 0 {
		opts.FingerprintLength = DefaultFingerprintLength
	}
	if opts.FingerprintLength < MinFingerprintLength || opts.FingerprintLength > MaxFingerprintLength {
		return nil, asseterrors.NewConfigError("CACHE_FINGERPRINT_LENGTH",
			fmt.Sprintf("fingerprint length %d is not in range %d-%d",
				opts.FingerprintLength, MinFingerprintLength, MaxFingerprintLength))
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}

	for _, dir := range []string{opts.PublicDir, opts.IndexDir, filepath.Join(opts.IndexDir, "groups")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, asseterrors.NewCacheWriteError(dir, err)
		}
	}

	return &Store{
		opts:      opts,
		hasher:    NewHasher(opts.Mode, NewHashMemo(opts.MemoEntries)),
		logger:    opts.Logger.WithComponent("cache"),
		metrics:   opts.Metrics,
		published: make(map[string]*Bundle),
		groups:    make(map[string]groupPointer),
	}, nil
}

// URL returns the public URL of a bundle file.
func (s *Store) URL(fingerprint string, kind assets.Kind) string {
	return s.opts.PublicURL + "/" + fingerprint + kind.Extension()
}

// Key signs sources and computes their fingerprint and group key. Files
// whose mtime and size match the group's last recorded compilation are not
// read again.
func (s *Store) Key(ctx context.Context, chain Chain, sources []assets.Source) (Key, error) {
	identities := make([]InputSignature, len(sources))
	for i, src := range sources {
		kind := InputFile
		if _, ok := src.(assets.InlineSource); ok {
			kind = InputInline
		}
		identities[i] = InputSignature{Identity: src.Identity(), Kind: kind}
	}
	group := GroupKey(identities, chain)

	recorded := s.recordedInputs(group)
	inputs, err := s.hasher.Signatures(ctx, sources, recorded)
	if err != nil {
		return Key{}, err
	}

	return Key{
		Kind:        chain.Kind(),
		Fingerprint: Fingerprint(inputs, chain, s.opts.FingerprintLength),
		Group:       group,
		Chain:       chain.Identity(),
		Inputs:      inputs,
	}, nil
}

func (s *Store) recordedInputs(group string) map[string]InputSignature {
	ptr, ok := s.groupPointer(group)
	if !ok {
		return nil
	}

	recorded := make(map[string]InputSignature, len(ptr.Inputs))
	for _, in := range ptr.Inputs {
		if in.Kind == InputFile {
			recorded[in.Identity] = in
		}
	}

	return recorded
}

func (s *Store) groupPointer(group string) (groupPointer, bool) {
	s.mu.RLock()
	ptr, ok := s.groups[group]
	s.mu.RUnlock()
	if ok {
		return ptr, true
	}

	if err := readJSON(s.groupPath(group), &ptr); err != nil || !IsFingerprint(ptr.Fingerprint) {
		return groupPointer{}, false
	}

	s.mu.Lock()
	s.groups[group] = ptr
	s.mu.Unlock()

	return ptr, true
}

// Get returns the published bundle for fingerprint. An index entry whose
// bundle file is missing is a miss.
func (s *Store) Get(fingerprint string) (*Bundle, bool) {
	if !IsFingerprint(fingerprint) {
		return nil, false
	}

	s.mu.RLock()
	b, ok := s.published[fingerprint]
	s.mu.RUnlock()
	if ok {
		// Another process may have swept the file.
		if info, err := os.Stat(b.Path); err == nil && info.Mode().IsRegular() {
			return b, true
		}
		s.mu.Lock()
		delete(s.published, fingerprint)
		s.mu.Unlock()
		return nil, false
	}

	var entry Bundle
	if err := readJSON(s.indexPath(fingerprint), &entry); err != nil {
		return nil, false
	}
	if entry.Fingerprint != fingerprint || entry.File != path.Base(entry.File) {
		return nil, false
	}

	entry.Path = filepath.Join(s.opts.PublicDir, entry.File)
	info, err := os.Stat(entry.Path)
	if err != nil || !info.Mode().IsRegular() {
		return nil, false
	}
	entry.URL = s.opts.PublicURL + "/" + entry.File
	entry.Persisted = true

	s.mu.Lock()
	s.published[fingerprint] = &entry
	s.mu.Unlock()

	return &entry, true
}

// Put stores compiled bytes under key. The bundle file is published before
// its index entry, each with an atomic rename, so a reader that finds an
// index entry always finds the complete bundle.
func (s *Store) Put(key Key, data []byte) (*Bundle, error) {
	if !IsFingerprint(key.Fingerprint) {
		return nil, fmt.Errorf("invalid fingerprint %q", key.Fingerprint)
	}

	file := key.Fingerprint + key.Kind.Extension()
	bundle := &Bundle{
		Fingerprint: key.Fingerprint,
		Kind:        key.Kind.String(),
		File:        file,
		Size:        int64(len(data)),
		Inputs:      key.Inputs,
		Chain:       key.Chain,
		CompiledAt:  time.Now().UTC(),
		URL:         s.opts.PublicURL + "/" + file,
		Path:        filepath.Join(s.opts.PublicDir, file),
		Persisted:   true,
	}

	if err := writeFileAtomic(bundle.Path, data, 0o644); err != nil {
		return nil, asseterrors.NewCacheWriteError(bundle.Path, err)
	}

	indexPath := s.indexPath(key.Fingerprint)
	if err := writeJSONAtomic(indexPath, bundle); err != nil {
		return nil, asseterrors.NewCacheWriteError(indexPath, err)
	}

	s.mu.Lock()
	s.published[key.Fingerprint] = bundle
	s.mu.Unlock()

	return bundle, nil
}

// CompileFunc compiles a group. Besides the output it returns the hex
// sha256 of every source's bytes as read, in input order, or nil when the
// compiler cannot report them.
type CompileFunc func(ctx context.Context) (data []byte, digests []string, err error)

// GetOrCompile returns the bundle for key, calling compile on a miss. At
// most one compilation per fingerprint runs at a time in this process;
// concurrent callers share its result, and a caller whose ctx ends stops
// waiting without cancelling the compilation for the others. A compile error
// is returned as is and nothing is stored.
//
// Two outcomes are not errors and return a bundle with Persisted false that
// carries the compiled bytes: a write failure, and a source whose digest no
// longer matches the key because it was edited after Key read it.
func (s *Store) GetOrCompile(ctx context.Context, key Key, compile CompileFunc) (*Bundle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if b, ok := s.Get(key.Fingerprint); ok {
		s.metrics.Hits.Inc()
		s.pointGroup(key)
		return b, nil
	}
	s.metrics.Misses.Inc()

	shared := context.WithoutCancel(ctx)
	results := s.flight.DoChan(key.Fingerprint, func() (interface{}, error) {
		return s.compile(shared, key, compile)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-results:
	}
	if res.Err != nil {
		return nil, res.Err
	}

	b := res.Val.(*Bundle)
	if b.Persisted {
		s.pointGroup(key)
	}

	return b, nil
}

func (s *Store) compile(ctx context.Context, key Key, compile CompileFunc) (*Bundle, error) {
	if b, ok := s.Get(key.Fingerprint); ok {
		return b, nil
	}

	kind := key.Kind.String()
	perf := logging.StartOperation(s.logger, "compile")
	start := time.Now()

	data, digests, err := compile(ctx)
	if err != nil {
		s.metrics.CompileErrors.WithLabelValues(kind).Inc()
		perf.EndWithError(ctx, err, "kind", kind, "fingerprint", key.Fingerprint)
		return nil, err
	}
	s.metrics.Compilations.WithLabelValues(kind).Inc()
	s.metrics.CompileDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	perf.End(ctx, "kind", kind, "fingerprint", key.Fingerprint, "bytes", len(data))

	unpersisted := func(cause error) *Bundle {
		return &Bundle{
			Fingerprint: key.Fingerprint,
			Kind:        kind,
			Size:        int64(len(data)),
			Inputs:      key.Inputs,
			Chain:       key.Chain,
			CompiledAt:  time.Now().UTC(),
			Content:     data,
			WriteErr:    cause,
		}
	}

	if changed := changedInput(key.Inputs, digests); changed != "" {
		err := asseterrors.NewSourceChangedError(changed)
		s.logger.Warn(ctx, err, "Serving bundle without persisting it",
			"kind", kind, "fingerprint", key.Fingerprint)
		return unpersisted(err), nil
	}

	b, err := s.Put(key, data)
	if err != nil {
		s.metrics.WriteErrors.Inc()
		s.logger.Warn(ctx, err, "Serving bundle without persisting it",
			"kind", kind, "fingerprint", key.Fingerprint)
		return unpersisted(err), nil
	}

	return b, nil
}

// changedInput returns the identity of the first input whose compile-time
// digest differs from its fingerprinted hash. Inputs signed without a hash
// (mtime mode) are not checked. A nil digests slice skips the check.
func changedInput(inputs []InputSignature, digests []string) string {
	if digests == nil {
		return ""
	}
	if len(digests) != len(inputs) {
		if len(inputs) > 0 {
			return inputs[0].Identity
		}
		return "group"
	}

	for i, in := range inputs {
		if in.Hash != "" && digests[i] != in.Hash {
			return in.Identity
		}
	}

	return ""
}

// pointGroup records fingerprint and the group's input signatures as the
// group's latest compilation.
func (s *Store) pointGroup(key Key) {
	s.mu.RLock()
	current, ok := s.groups[key.Group]
	s.mu.RUnlock()
	if ok && current.Fingerprint == key.Fingerprint && sameSignatures(current.Inputs, key.Inputs) {
		return
	}

	ptr := groupPointer{Fingerprint: key.Fingerprint, Inputs: key.Inputs, UpdatedAt: time.Now().UTC()}
	if err := writeJSONAtomic(s.groupPath(key.Group), ptr); err != nil {
		s.logger.Warn(context.Background(), err, "Failed to update group pointer", "group", key.Group)
		return
	}

	s.mu.Lock()
	s.groups[key.Group] = ptr
	s.mu.Unlock()
}

func sameSignatures(a, b []InputSignature) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Identity != b[i].Identity || a[i].Kind != b[i].Kind || a[i].Hash != b[i].Hash ||
			a[i].Size != b[i].Size || !a[i].ModTime.Equal(b[i].ModTime) {
			return false
		}
	}

	return true
}

func (s *Store) indexPath(fingerprint string) string {
	return filepath.Join(s.opts.IndexDir, fingerprint+".json")
}

func (s *Store) groupPath(group string) string {
	return filepath.Join(s.opts.IndexDir, "groups", group+".json")
}

// Sweep removes bundles that no group pointer references and whose index
// entry is older than olderThan, along with stale temporary files. It is an
// out-of-band maintenance operation: a bundle still referenced by a page
// rendered from an older group pointer may be removed once it ages out.
func (s *Store) Sweep(ctx context.Context, olderThan time.Duration, dryRun bool) ([]string, error) {
	cutoff := time.Now().Add(-olderThan)

	referenced, err := s.referencedFingerprints()
	if err != nil {
		return nil, err
	}

	var removed []string
	remove := func(p string) error {
		removed = append(removed, p)
		if dryRun {
			return nil
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("removing %s: %w", p, err)
		}
		return nil
	}

	indexed := make(map[string]bool)
	entries, err := os.ReadDir(s.opts.IndexDir)
	if err != nil {
		return nil, fmt.Errorf("reading index directory: %w", err)
	}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		name := e.Name()
		if !e.IsDir() && isTempFile(name) {
			if info, err := e.Info(); err == nil && info.ModTime().Before(cutoff) {
				if err := remove(filepath.Join(s.opts.IndexDir, name)); err != nil {
					return removed, err
				}
			}
			continue
		}
		fp := strings.TrimSuffix(name, ".json")
		if e.IsDir() || !IsFingerprint(fp) || fp+".json" != name {
			continue
		}
		indexed[fp] = true
		if referenced[fp] {
			continue
		}

		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}

		var entry Bundle
		if err := readJSON(filepath.Join(s.opts.IndexDir, name), &entry); err == nil && entry.File == path.Base(entry.File) && entry.File != "" {
			if err := remove(filepath.Join(s.opts.PublicDir, entry.File)); err != nil {
				return removed, err
			}
		}
		if err := remove(filepath.Join(s.opts.IndexDir, name)); err != nil {
			return removed, err
		}

		if !dryRun {
			s.mu.Lock()
			delete(s.published, fp)
			s.mu.Unlock()
		}
	}

	// Bundle files without an index entry and leftover temporary files.
	files, err := os.ReadDir(s.opts.PublicDir)
	if err != nil {
		return removed, fmt.Errorf("reading public directory: %w", err)
	}
	for _, e := range files {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		fp := strings.TrimSuffix(strings.TrimSuffix(name, ".css"), ".js")
		orphan := IsFingerprint(fp) && fp != name && !indexed[fp] && !referenced[fp]
		if !orphan && !isTempFile(name) {
			continue
		}

		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := remove(filepath.Join(s.opts.PublicDir, name)); err != nil {
			return removed, err
		}
	}

	s.logger.Info(ctx, "Sweep finished", "removed", len(removed), "dry_run", dryRun)

	return removed, nil
}

func (s *Store) referencedFingerprints() (map[string]bool, error) {
	dir := filepath.Join(s.opts.IndexDir, "groups")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]bool{}, nil
		}
		return nil, fmt.Errorf("reading group pointers: %w", err)
	}

	referenced := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		var ptr groupPointer
		if err := readJSON(filepath.Join(dir, e.Name()), &ptr); err == nil {
			referenced[ptr.Fingerprint] = true
		}
	}

	return referenced, nil
}
