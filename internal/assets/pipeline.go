package assets

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/errgroup"

	"odocs/api/internal/metrics"
	"odocs/api/internal/storage"
)

const (
	defaultMoveConcurrency = 8
	defaultCacheSize       = 4096
)

type Options struct {
	Scheme       string
	UploadURLTTL time.Duration
	ViewURLTTL   time.Duration
	CacheSize    int
}

// Pipeline owns the asset reference scheme on top of an object store: draft
// promotion, presigned upload and view URLs, and cloning.
type Pipeline struct {
	objects   storage.ObjectStore
	scheme    Scheme
	uploadTTL time.Duration
	viewTTL   time.Duration
	viewCache *expirable.LRU[string, string]
	moveLimit int
}

func NewPipeline(objects storage.ObjectStore, opts Options) *Pipeline {
	if opts.Scheme == "" {
		opts.Scheme = "odocs"
	}
	if opts.UploadURLTTL <= 0 {
		opts.UploadURLTTL = 15 * time.Minute
	}
	if opts.ViewURLTTL <= 0 {
		opts.ViewURLTTL = time.Hour
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = defaultCacheSize
	}
	return &Pipeline{
		objects:   objects,
		scheme:    Scheme(opts.Scheme),
		uploadTTL: opts.UploadURLTTL,
		viewTTL:   opts.ViewURLTTL,
		// Cached URLs must stay valid for a while after they are served.
		viewCache: expirable.NewLRU[string, string](opts.CacheSize, nil, opts.ViewURLTTL/2),
		moveLimit: defaultMoveConcurrency,
	}
}

func (p *Pipeline) Scheme() Scheme {
	return p.scheme
}

// Promote moves every draft asset referenced by content into the document's
// permanent namespace and rewrites the references. Move failures are logged
// and counted; the reference is rewritten regardless. Content without draft
// references is returned as is.
func (p *Pipeline) Promote(ctx context.Context, workspaceID, documentID string, content json.RawMessage) json.RawMessage {
	draftPrefix := p.scheme.Ref(Ref{Kind: KindDraft, WorkspaceID: workspaceID, DocumentID: documentID})
	pattern, err := regexp.Compile(regexp.QuoteMeta(draftPrefix) + `([a-zA-Z0-9-]+)`)
	if err != nil {
		log.Printf("assets: compile draft pattern: %v", err)
		return content
	}

	matches := pattern.FindAllSubmatch(content, -1)
	if len(matches) == 0 {
		return content
	}

	seen := make(map[string]struct{}, len(matches))
	var g errgroup.Group
	g.SetLimit(p.moveLimit)
	for _, match := range matches {
		assetID := string(match[1])
		if _, dup := seen[assetID]; dup {
			continue
		}
		seen[assetID] = struct{}{}
		g.Go(func() error {
			src := DraftKey(workspaceID, documentID, assetID)
			dst := DocumentKey(workspaceID, documentID, assetID)
			if err := p.objects.Move(ctx, src, dst); err != nil {
				metrics.AssetPromotionFailures.Inc()
				log.Printf("assets: promote %s: %v", src, err)
				return nil
			}
			metrics.AssetPromotionMoved.Inc()
			return nil
		})
	}
	_ = g.Wait()

	permanentPrefix := p.scheme.Ref(Ref{Kind: KindDocument, WorkspaceID: workspaceID, DocumentID: documentID})
	return pattern.ReplaceAll(content, []byte(permanentPrefix+"${1}"))
}

type UploadTicket struct {
	AssetID   string    `json:"assetId"`
	UploadURL string    `json:"uploadUrl"`
	Ref       string    `json:"ref"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// UploadURL issues a presigned PUT for a file-scoped asset.
func (p *Pipeline) UploadURL(ctx context.Context, workspaceID, documentID, contentType string) (UploadTicket, error) {
	return p.upload(ctx, Ref{Kind: KindFile, WorkspaceID: workspaceID, DocumentID: documentID, AssetID: uuid.NewString()}, contentType)
}

// DraftUploadURL issues a presigned PUT for a draft that the next saved
// revision will promote.
func (p *Pipeline) DraftUploadURL(ctx context.Context, workspaceID, documentID, contentType string) (UploadTicket, error) {
	return p.upload(ctx, Ref{Kind: KindDraft, WorkspaceID: workspaceID, DocumentID: documentID, AssetID: uuid.NewString()}, contentType)
}

func (p *Pipeline) upload(ctx context.Context, ref Ref, contentType string) (UploadTicket, error) {
	signed, err := p.objects.PresignPut(ctx, ref.Key(), contentType, p.uploadTTL)
	if err != nil {
		return UploadTicket{}, fmt.Errorf("presign upload: %w", err)
	}
	return UploadTicket{
		AssetID:   ref.AssetID,
		UploadURL: signed,
		Ref:       p.scheme.Ref(ref),
		ExpiresAt: time.Now().UTC().Add(p.uploadTTL),
	}, nil
}

// ViewURL returns a presigned GET for ref, which must belong to the given
// workspace and document.
func (p *Pipeline) ViewURL(ctx context.Context, workspaceID, documentID, raw string) (string, error) {
	ref, err := p.scheme.Parse(raw)
	if err != nil {
		return "", err
	}
	if ref.WorkspaceID != workspaceID || ref.DocumentID != documentID {
		return "", ErrForeignReference
	}
	return p.presignGet(ctx, ref.Key())
}

func (p *Pipeline) presignGet(ctx context.Context, key string) (string, error) {
	if cached, ok := p.viewCache.Get(key); ok {
		metrics.ViewURLCacheHits.Inc()
		return cached, nil
	}
	metrics.ViewURLCacheMisses.Inc()
	signed, err := p.objects.PresignGet(ctx, key, p.viewTTL)
	if err != nil {
		return "", fmt.Errorf("presign view: %w", err)
	}
	p.viewCache.Add(key, signed)
	return signed, nil
}

// ResolveURLs signs view URLs for the promoted and file-scoped references
// that belong to the document. Anything else is skipped.
func (p *Pipeline) ResolveURLs(ctx context.Context, workspaceID, documentID string, refs []string) (map[string]string, error) {
	var (
		mu       sync.Mutex
		resolved = make(map[string]string, len(refs))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.moveLimit)
	for _, raw := range refs {
		ref, err := p.scheme.Parse(raw)
		if err != nil || ref.Kind == KindDraft {
			continue
		}
		if ref.WorkspaceID != workspaceID || ref.DocumentID != documentID {
			continue
		}
		g.Go(func() error {
			signed, err := p.presignGet(gctx, ref.Key())
			if err != nil {
				return err
			}
			mu.Lock()
			resolved[raw] = signed
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return resolved, nil
}

// Clone copies a promoted or file-scoped asset of the workspace into the
// target document under a fresh id and returns the new reference.
func (p *Pipeline) Clone(ctx context.Context, workspaceID, targetDocumentID, raw string) (string, error) {
	src, err := p.scheme.Parse(raw)
	if err != nil {
		return "", err
	}
	if src.Kind == KindDraft {
		return "", ErrInvalidReference
	}
	if src.WorkspaceID != workspaceID {
		return "", ErrForeignReference
	}
	dst := Ref{Kind: KindDocument, WorkspaceID: workspaceID, DocumentID: targetDocumentID, AssetID: uuid.NewString()}
	if err := p.objects.Copy(ctx, src.Key(), dst.Key()); err != nil {
		return "", fmt.Errorf("clone asset: %w", err)
	}
	return p.scheme.Ref(dst), nil
}
