// Package references manages the reference-audio tree and resolves the reference
// audio/text pair handed to the inference tool.
package references

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/bobarin/voicebox/internal/models"
)

const (
	CollectionDefault = "default" // shipped samples, read-only through the API
	CollectionCustom  = "custom"  // uploaded samples

	sidecarExt = ".txt"
)

var (
	ErrReferenceNotFound = errors.New("reference audio not found")
	ErrInvalidSidecar    = errors.New("sidecar is not valid UTF-8 text")
)

// AudioExtensions lists the file types accepted as reference audio.
var AudioExtensions = map[string]bool{
	".wav":  true,
	".mp3":  true,
	".flac": true,
	".ogg":  true,
	".m4a":  true,
}

var collections = []string{CollectionDefault, CollectionCustom}

// Location is a reference id mapped onto the filesystem.
type Location struct {
	ID         string
	Collection string
	Filename   string
	Path       string // absolute, under the store root
}

// SidecarPath is the transcript file next to the audio: same basename, .txt extension.
func (l Location) SidecarPath() string {
	return strings.TrimSuffix(l.Path, filepath.Ext(l.Path)) + sidecarExt
}

// Store is the two-collection reference-audio tree.
type Store struct {
	root string
}

// NewStore opens root, creating the collection directories when missing.
func NewStore(root string) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve reference root %s: %w", root, err)
	}
	for _, c := range collections {
		if err := os.MkdirAll(filepath.Join(abs, c), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create reference collection %s: %w", c, err)
		}
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve reference root %s: %w", abs, err)
	}
	return &Store{root: resolved}, nil
}

func (s *Store) Root() string {
	return s.root
}

// Contains reports whether path lies strictly inside the store root.
func (s *Store) Contains(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(s.root, abs)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// Locate maps "<collection>/<filename>" onto the store. Ids that would leave the root
// are rejected with an access-denied error before anything is read.
func (s *Store) Locate(id string) (Location, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Location{}, models.NewValidationError("reference audio id is required")
	}
	if filepath.IsAbs(id) || strings.HasPrefix(id, "/") {
		return Location{}, models.NewAccessDenied(fmt.Sprintf("reference audio %q is outside the reference root", id), nil)
	}

	joined := filepath.Join(s.root, filepath.FromSlash(id))
	if !s.Contains(joined) {
		return Location{}, models.NewAccessDenied(fmt.Sprintf("reference audio %q is outside the reference root", id), nil)
	}

	rel, _ := filepath.Rel(s.root, joined)
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 2 {
		return Location{}, models.NewValidationError("reference audio id %q must be <collection>/<filename>", id)
	}
	collection, filename := parts[0], parts[1]
	if collection != CollectionDefault && collection != CollectionCustom {
		return Location{}, models.NewValidationError("unknown reference collection %q (allowed: %s)", collection, strings.Join(collections, ", "))
	}

	// A symlink inside the tree must not point out of it.
	if resolved, err := filepath.EvalSymlinks(joined); err == nil && !s.Contains(resolved) {
		return Location{}, models.NewAccessDenied(fmt.Sprintf("reference audio %q resolves outside the reference root", id), nil)
	}

	return Location{
		ID:         collection + "/" + filename,
		Collection: collection,
		Filename:   filename,
		Path:       joined,
	}, nil
}

// Require returns an error when the audio file at loc does not exist.
func (s *Store) Require(loc Location) error {
	info, err := os.Stat(loc.Path)
	if err != nil || info.IsDir() {
		return &models.Error{
			Kind:    models.KindValidation,
			Message: fmt.Sprintf("reference audio %s not found", loc.ID),
			Err:     ErrReferenceNotFound,
		}
	}
	return nil
}

// ReadSidecar returns the trimmed transcript stored next to loc.
func (s *Store) ReadSidecar(loc Location) (string, error) {
	data, err := os.ReadFile(loc.SidecarPath())
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%s: %w", loc.SidecarPath(), ErrInvalidSidecar)
	}
	return strings.TrimSpace(string(data)), nil
}

// WriteSidecar stores text as the transcript of loc.
func (s *Store) WriteSidecar(loc Location, text string) error {
	return writeFileAtomic(loc.SidecarPath(), strings.NewReader(strings.TrimSpace(text)+"\n"))
}

// Open returns the audio file at id for reading.
func (s *Store) Open(id string) (*os.File, Location, error) {
	loc, err := s.Locate(id)
	if err != nil {
		return nil, Location{}, err
	}
	if err := s.Require(loc); err != nil {
		return nil, Location{}, err
	}
	f, err := os.Open(loc.Path)
	if err != nil {
		return nil, Location{}, fmt.Errorf("failed to open reference audio %s: %w", loc.ID, err)
	}
	return f, loc, nil
}

// List returns every audio file in both collections.
func (s *Store) List() ([]models.ReferenceAudio, error) {
	var out []models.ReferenceAudio
	for _, c := range collections {
		entries, err := os.ReadDir(filepath.Join(s.root, c))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("failed to list %s references: %w", c, err)
		}
		for _, entry := range entries {
			if entry.IsDir() || !AudioExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			loc := Location{
				ID:         c + "/" + entry.Name(),
				Collection: c,
				Filename:   entry.Name(),
				Path:       filepath.Join(s.root, c, entry.Name()),
			}
			_, sidecarErr := os.Stat(loc.SidecarPath())
			out = append(out, models.ReferenceAudio{
				ID:         loc.ID,
				Collection: c,
				Filename:   entry.Name(),
				ByteSize:   info.Size(),
				HasText:    sidecarErr == nil,
				ModifiedAt: info.ModTime(),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Save writes an uploaded sample into the custom collection, with its transcript when
// text is non-empty. An existing file with the same name is replaced.
func (s *Store) Save(filename string, src io.Reader, text string) (Location, error) {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return Location{}, models.NewValidationError("filename is required")
	}
	if filename != filepath.Base(filename) {
		return Location{}, models.NewAccessDenied(fmt.Sprintf("filename %q must not contain path separators", filename), nil)
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if !AudioExtensions[ext] {
		return Location{}, models.NewValidationError("unsupported reference audio type %q", ext)
	}

	loc, err := s.Locate(CollectionCustom + "/" + filename)
	if err != nil {
		return Location{}, err
	}
	if err := writeFileAtomic(loc.Path, src); err != nil {
		return Location{}, fmt.Errorf("failed to save reference audio %s: %w", loc.ID, err)
	}

	if strings.TrimSpace(text) != "" {
		if err := s.WriteSidecar(loc, text); err != nil {
			return Location{}, fmt.Errorf("failed to save reference text for %s: %w", loc.ID, err)
		}
	} else if err := os.Remove(loc.SidecarPath()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("[References] Failed to remove stale sidecar for %s: %v", loc.ID, err)
	}

	log.Printf("[References] Saved %s", loc.ID)
	return loc, nil
}

// Delete removes a custom sample and its transcript.
func (s *Store) Delete(id string) error {
	loc, err := s.Locate(id)
	if err != nil {
		return err
	}
	if loc.Collection != CollectionCustom {
		return models.NewAccessDenied(fmt.Sprintf("collection %q is read-only", loc.Collection), nil)
	}
	if err := os.Remove(loc.Path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &models.Error{
				Kind:    models.KindValidation,
				Message: fmt.Sprintf("reference audio %s not found", loc.ID),
				Err:     ErrReferenceNotFound,
			}
		}
		return fmt.Errorf("failed to delete reference audio %s: %w", loc.ID, err)
	}
	if err := os.Remove(loc.SidecarPath()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("[References] Failed to delete sidecar for %s: %v", loc.ID, err)
	}

	log.Printf("[References] Deleted %s", loc.ID)
	return nil
}

func writeFileAtomic(path string, src io.Reader) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}
