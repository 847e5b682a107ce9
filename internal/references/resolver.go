package references

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"strings"

	"github.com/bobarin/voicebox/internal/models"
	"github.com/bobarin/voicebox/internal/services"
)

// Resolution is the reference pair handed to the inference tool.
// Degraded is set when a tier failed and was skipped; the request still proceeds.
type Resolution struct {
	Location  Location
	AudioPath string
	Text      string
	Source    models.TextSource
	Degraded  bool
	Notes     []string
}

// Resolver picks the reference text in priority order: explicit text, sidecar file,
// automatic transcription, then no text at all.
type Resolver struct {
	store            *Store
	transcriber      services.Transcriber // nil when no provider is configured
	cacheTranscripts bool                 // custom collection only
}

func NewResolver(store *Store, transcriber services.Transcriber, cacheTranscripts bool) *Resolver {
	return &Resolver{
		store:            store,
		transcriber:      transcriber,
		cacheTranscripts: cacheTranscripts,
	}
}

// Resolve locates referenceAudioID and determines its reference text. Only an id outside
// the reference root, a malformed id or a missing audio file produce an error; failures
// to find text never do.
func (r *Resolver) Resolve(ctx context.Context, referenceAudioID, explicitText string) (Resolution, error) {
	loc, err := r.store.Locate(referenceAudioID)
	if err != nil {
		return Resolution{}, err
	}
	if err := r.store.Require(loc); err != nil {
		return Resolution{}, err
	}

	res := Resolution{Location: loc, AudioPath: loc.Path}

	if text := strings.TrimSpace(explicitText); text != "" {
		res.Text = explicitText
		res.Source = models.TextSourceExplicit
		return res, nil
	}

	text, err := r.store.ReadSidecar(loc)
	switch {
	case err == nil && text != "":
		res.Text = text
		res.Source = models.TextSourceSidecar
		return res, nil
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		log.Printf("[Resolver] Ignoring unreadable sidecar for %s: %v", loc.ID, err)
		res.Degraded = true
		res.Notes = append(res.Notes, "sidecar unreadable: "+err.Error())
	}

	if r.transcriber == nil {
		res.Source = models.TextSourceNone
		return res, nil
	}

	tr, err := r.transcriber.Transcribe(ctx, loc.Path)
	if err != nil || tr == nil || strings.TrimSpace(tr.Text) == "" {
		if err == nil {
			err = errors.New("empty transcript")
		}
		log.Printf("[Resolver] %s transcription of %s failed, continuing without reference text: %v", r.transcriber.Name(), loc.ID, err)
		res.Source = models.TextSourceNone
		res.Degraded = true
		res.Notes = append(res.Notes, "transcription failed: "+err.Error())
		return res, nil
	}

	res.Text = strings.TrimSpace(tr.Text)
	res.Source = models.TextSourceTranscribed
	if tr.AudioPath != "" && tr.AudioPath != loc.Path {
		if r.store.Contains(tr.AudioPath) {
			res.AudioPath = tr.AudioPath
		} else {
			log.Printf("[Resolver] Ignoring rewritten audio %s for %s: outside the reference root", tr.AudioPath, loc.ID)
		}
	}

	// The default collection is read-only; only uploaded samples get a cached sidecar.
	if r.cacheTranscripts && loc.Collection == CollectionCustom {
		if err := r.store.WriteSidecar(loc, res.Text); err != nil {
			log.Printf("[Resolver] Failed to cache transcript for %s: %v", loc.ID, err)
		} else {
			log.Printf("[Resolver] Cached transcript for %s", loc.ID)
		}
	}
	return res, nil
}
