// Package securestore keeps uploaded images in a private temporary directory,
// encrypted and content-addressed, for exactly as long as a session needs
// them.
//
// Files are named <first 16 hex of SHA-256><ext>[.enc], so identical uploads
// land on the same path. The digest of the plaintext is remembered at save
// time and re-checked on every load. Files leave the store only through
// SecureDelete, which overwrites them with random bytes before unlinking.
// Overwriting cannot defeat wear-levelling or copy-on-write filesystems.
//
// A Store owns its directory: nothing else may write into it.
package securestore

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/dmitrijs2005/cytoguard/internal/audit"
	"github.com/dmitrijs2005/cytoguard/internal/common"
	"github.com/dmitrijs2005/cytoguard/internal/logging"
	"github.com/dmitrijs2005/cytoguard/internal/validation"
)

const (
	// DirPrefix starts the name of every store directory.
	DirPrefix = "cytoguard_secure_"
	// EncryptedSuffix marks files holding ciphertext.
	EncryptedSuffix = ".enc"

	nameHashLen = 16
	fileMode    = 0o600
)

// Cipher is the encryption the store applies at rest. *cryptox.Session
// satisfies it.
type Cipher interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// Tracker is told about every directory a store creates and removes, so a
// process can reclaim directories left behind by stores that were never
// cleaned up.
type Tracker interface {
	Track(dir string)
	Untrack(dir string)
}

// StoredFile is a handle to a saved upload.
type StoredFile struct {
	Path        string
	ContentHash string
	Encrypted   bool
}

// Store is a per-session secure temporary file store.
type Store struct {
	mu      sync.Mutex
	dir     string
	cipher  Cipher
	rec     audit.Recorder
	logger  logging.Logger
	tracker Tracker
	rand    io.Reader
	hashes  map[string]string
	closed  bool
}

type options struct {
	baseDir string
	logger  logging.Logger
	tracker Tracker
	rand    io.Reader
}

// Option configures Open.
type Option func(*options)

// WithBaseDir creates the store directory under dir instead of os.TempDir().
func WithBaseDir(dir string) Option {
	return func(o *options) { o.baseDir = dir }
}

func WithLogger(l logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

func WithTracker(t Tracker) Option {
	return func(o *options) { o.tracker = t }
}

// WithOverwriteSource replaces crypto/rand as the source of overwrite bytes.
func WithOverwriteSource(r io.Reader) Option {
	return func(o *options) { o.rand = r }
}

// Open allocates a fresh, uniquely named directory owned by the new store.
func Open(ctx context.Context, c Cipher, rec audit.Recorder, opts ...Option) (*Store, error) {
	o := &options{logger: logging.NopLogger{}, rand: rand.Reader}
	for _, opt := range opts {
		opt(o)
	}

	if o.baseDir != "" {
		if err := os.MkdirAll(o.baseDir, 0o700); err != nil {
			return nil, fmt.Errorf("%w: creating base dir: %v", common.ErrStore, err)
		}
	}

	dir, err := os.MkdirTemp(o.baseDir, DirPrefix)
	if err != nil {
		return nil, fmt.Errorf("%w: creating temp dir: %v", common.ErrStore, err)
	}
	if dir, err = filepath.Abs(dir); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrStore, err)
	}

	s := &Store{
		dir:     dir,
		cipher:  c,
		rec:     rec,
		logger:  o.logger.With("module", "securestore"),
		tracker: o.tracker,
		rand:    o.rand,
		hashes:  make(map[string]string),
	}

	if s.tracker != nil {
		s.tracker.Track(dir)
	}

	s.record(ctx, audit.ActionTempDirCreated, map[string]any{"path": dir})
	s.logger.Debug(ctx, "store opened", "dir", dir)

	return s, nil
}

// Dir returns the directory owned by the store.
func (s *Store) Dir() string {
	return s.dir
}

// Paths lists the files currently known to the store.
func (s *Store) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.hashes))
	for p := range s.hashes {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Save writes u under its content-derived name, encrypted when encrypt is set.
// Saving identical bytes twice yields the same path.
func (s *Store) Save(ctx context.Context, u validation.Upload, encrypt bool) (*StoredFile, error) {
	sum := sha256.Sum256(u.Data)
	digest := hex.EncodeToString(sum[:])

	path := filepath.Join(s.dir, digest[:nameHashLen]+u.Ext())

	data := u.Data
	if encrypt {
		ct, err := s.cipher.Encrypt(u.Data)
		if err != nil {
			return nil, fmt.Errorf("encrypting %s: %w", u.Filename, err)
		}
		data = ct
		path += EncryptedSuffix
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("%w: store closed", common.ErrStore)
	}

	if err := os.WriteFile(path, data, fileMode); err != nil {
		return nil, fmt.Errorf("%w: writing %s: %v", common.ErrStore, filepath.Base(path), err)
	}
	s.hashes[path] = digest

	s.record(ctx, audit.ActionFileSaved, map[string]any{
		"filename":  u.Filename,
		"temp_path": path,
		"encrypted": encrypt,
		"hash":      digest[:nameHashLen],
	})

	return &StoredFile{Path: path, ContentHash: digest, Encrypted: encrypt}, nil
}

// Load reads a stored file, decrypting it when decrypt is set and the file
// is encrypted, and verifies the plaintext digest. Tampering or corruption
// yields an error wrapping common.ErrIntegrity; it is never repaired.
//
// With decrypt unset an encrypted file is returned as ciphertext and its
// digest cannot be checked.
func (s *Store) Load(ctx context.Context, path string, decrypt bool) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.resolve(path)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: temporary file not found: %s", common.ErrStore, filepath.Base(path))
		}
		return nil, fmt.Errorf("%w: reading %s: %v", common.ErrStore, filepath.Base(path), err)
	}

	encrypted := strings.HasSuffix(path, EncryptedSuffix)
	data := raw
	if decrypt && encrypted {
		data, err = s.cipher.Decrypt(raw)
		if err != nil {
			s.integrityViolation(ctx, path, "decrypt")
			return nil, fmt.Errorf("%w: %w", common.ErrIntegrity, err)
		}
	}

	if !encrypted || decrypt {
		expected, ok := s.hashes[path]
		if !ok {
			s.integrityViolation(ctx, path, "unknown file")
			return nil, fmt.Errorf("%w: no recorded digest for %s", common.ErrIntegrity, filepath.Base(path))
		}
		sum := sha256.Sum256(data)
		if hex.EncodeToString(sum[:]) != expected {
			s.integrityViolation(ctx, path, "hash mismatch")
			return nil, fmt.Errorf("%w: content hash mismatch for %s", common.ErrIntegrity, filepath.Base(path))
		}
	}

	s.record(ctx, audit.ActionFileLoaded, map[string]any{
		"temp_path": path,
		"decrypted": decrypt && encrypted,
	})

	return data, nil
}

// SecureDelete overwrites path with random bytes, syncs it and removes it.
// It is best effort: a failure is logged at warn level and returned so the
// caller knows the bytes may survive, but callers are free to ignore it.
// A file that no longer exists is not an error.
func (s *Store) SecureDelete(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.resolve(path)
	if err != nil {
		return err
	}
	return s.secureDeleteLocked(ctx, path)
}

func (s *Store) secureDeleteLocked(ctx context.Context, path string) error {
	delete(s.hashes, path)

	if err := shred(path, s.rand); err != nil {
		s.logger.Warn(ctx, "secure delete failed", "path", path, "error", err)
		return fmt.Errorf("%w: secure delete %s: %v", common.ErrStore, filepath.Base(path), err)
	}

	s.record(ctx, audit.ActionFileDeleted, map[string]any{"temp_path": path})
	return nil
}

// removeAll is a seam for tests.
var removeAll = os.RemoveAll

// Cleanup securely deletes every file in the store and removes its directory.
// It can be called any number of times. Failures are logged and returned;
// the store is closed regardless.
func (s *Store) Cleanup(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error

	walkErr := filepath.WalkDir(s.dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.Type().IsRegular() {
			if err := s.secureDeleteLocked(ctx, p); err != nil {
				errs = append(errs, err)
			}
		}
		return nil
	})
	if walkErr != nil {
		errs = append(errs, walkErr)
	}

	removed := true
	if err := removeAll(s.dir); err != nil {
		errs = append(errs, err)
		removed = false
	}

	clear(s.hashes)

	// A directory that survived stays tracked for the shutdown sweep.
	if removed && s.tracker != nil {
		s.tracker.Untrack(s.dir)
	}

	if err := errors.Join(errs...); err != nil {
		s.logger.Warn(ctx, "cleanup incomplete", "dir", s.dir, "error", err)
		return fmt.Errorf("%w: cleanup: %v", common.ErrStore, err)
	}

	s.record(ctx, audit.ActionTempDirCleaned, map[string]any{"path": s.dir})
	return nil
}

// Closed reports whether Cleanup has run.
func (s *Store) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// resolve accepts absolute paths inside the store or bare file names.
func (s *Store) resolve(path string) (string, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.dir, path)
	}
	path = filepath.Clean(path)
	if filepath.Dir(path) != s.dir {
		return "", fmt.Errorf("%w: path outside store", common.ErrStore)
	}
	return path, nil
}

func (s *Store) integrityViolation(ctx context.Context, path, reason string) {
	s.logger.Error(ctx, "integrity violation", "path", path, "reason", reason)
	s.record(ctx, audit.ActionIntegrityViolation, map[string]any{
		"temp_path": path,
		"reason":    reason,
	})
}

func (s *Store) record(ctx context.Context, action string, details map[string]any) {
	if s.rec != nil {
		s.rec.Record(ctx, action, details)
	}
}

// shred overwrites the whole file with bytes from src, forces them to disk and
// removes the file. A missing file is a no-op.
func shred(path string, src io.Reader) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}

	_, werr := io.CopyN(f, src, info.Size())
	if werr == nil {
		werr = f.Sync()
	}
	cerr := f.Close()

	if werr != nil {
		// unlink even when the overwrite failed
		_ = os.Remove(path)
		return fmt.Errorf("overwrite: %w", werr)
	}
	if cerr != nil {
		_ = os.Remove(path)
		return cerr
	}

	return os.Remove(path)
}
