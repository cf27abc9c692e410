package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/empty"
	"github.com/google/go-containerregistry/pkg/v1/mutate"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/types"
	"github.com/klauspost/compress/zstd"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"

	"github.com/aweris/wallcas/internal/backoff"
	"github.com/aweris/wallcas/internal/store"
)

const (
	DefaultConcurrency = 4

	labelRoot     = "dev.wallcas.root"
	labelPrefixes = "dev.wallcas.prefixes"

	retryAttempts = 3
	retryBase     = 500 * time.Millisecond
)

type OCIRemote struct {
	ref         name.Reference
	auth        Authenticator
	concurrency int
	log         logrus.FieldLogger
}

var _ Remote = (*OCIRemote)(nil)

// NewOCIRemote creates a remote from a standard Docker ref (e.g., "ghcr.io/org/wall-content:main")
func NewOCIRemote(imageRef string, auth Authenticator) (*OCIRemote, error) {
	ref, err := name.ParseReference(imageRef, name.WithDefaultTag("latest"))
	if err != nil {
		return nil, fmt.Errorf("invalid image ref %q: %w", imageRef, err)
	}
	return &OCIRemote{ref: ref, auth: auth, concurrency: DefaultConcurrency, log: logrus.StandardLogger()}, nil
}

// SetConcurrency sets the number of parallel operations for push/pull
func (r *OCIRemote) SetConcurrency(n int) {
	if n > 0 {
		r.concurrency = n
	}
}

// SetLogger sets the logger for transfer progress.
func (r *OCIRemote) SetLogger(l logrus.FieldLogger) {
	if l != nil {
		r.log = l
	}
}

func (r *OCIRemote) String() string   { return r.ref.String() }
func (r *OCIRemote) Registry() string { return r.ref.Context().RegistryStr() }
func (r *OCIRemote) Tag() string      { return r.ref.Identifier() }

// WithTag returns a new OCIRemote with a different tag
func (r *OCIRemote) WithTag(tag string) (*OCIRemote, error) {
	newRef, err := name.NewTag(r.ref.Context().String()+":"+tag, name.WithDefaultTag("latest"))
	if err != nil {
		return nil, err
	}
	return &OCIRemote{ref: newRef, auth: r.auth, concurrency: r.concurrency, log: r.log}, nil
}

// entryLayer implements v1.Layer with zstd compression for remote transfer
type entryLayer struct {
	compressed   []byte
	uncompressed []byte
}

var zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))

func newEntryLayer(data []byte) *entryLayer {
	return &entryLayer{
		compressed:   zstdEncoder.EncodeAll(data, nil),
		uncompressed: data,
	}
}

func (l *entryLayer) Digest() (v1.Hash, error) {
	h, _, err := v1.SHA256(bytes.NewReader(l.compressed))
	return h, err
}

func (l *entryLayer) DiffID() (v1.Hash, error) {
	h, _, err := v1.SHA256(bytes.NewReader(l.uncompressed))
	return h, err
}

func (l *entryLayer) Compressed() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(l.compressed)), nil
}
func (l *entryLayer) Uncompressed() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(l.uncompressed)), nil
}
func (l *entryLayer) Size() (int64, error)                { return int64(len(l.compressed)), nil }
func (l *entryLayer) MediaType() (types.MediaType, error) { return types.OCILayerZStd, nil }

// Push uploads every entry as a snapshot. Layers are deterministic per
// prefix group, so the registry already holds unchanged ones and
// remote.Write skips them.
func (r *OCIRemote) Push(ctx context.Context, entries []store.Entry) (map[string]PrefixInfo, error) {
	byPrefix := GroupByPrefix(entries)

	r.log.WithFields(logrus.Fields{"entries": len(entries), "prefixes": len(byPrefix)}).Info("push")

	layerPlan := BuildLayerPlan(CalculatePrefixSizes(byPrefix))

	prefixes := make(map[string]PrefixInfo, len(byPrefix))
	layers := make([]v1.Layer, 0, len(layerPlan))
	var totalRaw, totalCompressed int64
	for _, prefixGroup := range layerPlan {
		layerData, err := PackLayer(CollectPrefixEntries(prefixGroup, byPrefix))
		if err != nil {
			return nil, fmt.Errorf("pack layer: %w", err)
		}
		layer := newEntryLayer(layerData)
		digest, err := layer.Digest()
		if err != nil {
			return nil, fmt.Errorf("layer digest: %w", err)
		}
		totalRaw += int64(len(layerData))
		totalCompressed += int64(len(layer.compressed))

		layers = append(layers, layer)
		for _, prefix := range prefixGroup {
			prefixes[prefix] = PrefixInfo{
				Hash:  PrefixHash(byPrefix[prefix]),
				Layer: digest.String(),
			}
		}
	}

	r.log.WithFields(logrus.Fields{
		"layers":     len(layers),
		"raw":        totalRaw,
		"compressed": totalCompressed,
	}).Info("push: uploading")

	img, err := r.buildImage(layers, RootHash(prefixes), prefixes)
	if err != nil {
		return nil, fmt.Errorf("build image: %w", err)
	}

	if err := r.pushImage(ctx, img); err != nil {
		return nil, fmt.Errorf("push image: %w", err)
	}

	r.log.Info("push: done")
	return prefixes, nil
}

func (r *OCIRemote) buildImage(layers []v1.Layer, rootHash string, prefixes map[string]PrefixInfo) (v1.Image, error) {
	img := empty.Image

	if len(layers) > 0 {
		var err error
		img, err = mutate.AppendLayers(img, layers...)
		if err != nil {
			return nil, err
		}
	}

	cfg, err := img.ConfigFile()
	if err != nil {
		return nil, err
	}

	prefixJSON, err := json.Marshal(prefixes)
	if err != nil {
		return nil, err
	}

	cfg.Config.Labels = map[string]string{
		labelRoot:     rootHash,
		labelPrefixes: string(prefixJSON),
	}

	return mutate.ConfigFile(img, cfg)
}

func (r *OCIRemote) pushImage(ctx context.Context, img v1.Image) error {
	options := r.remoteOptions(ctx)
	options = append(options, remote.WithJobs(r.concurrency))
	_, err := backoff.Retry(ctx, nil, retryAttempts, retryBase, func() (struct{}, error) {
		return struct{}{}, remote.Write(r.ref, img, options...)
	})
	return err
}

// Pull downloads entries from the prefix groups that differ from local.
func (r *OCIRemote) Pull(ctx context.Context, localPrefixes map[string]PrefixInfo) (string, []store.Entry, map[string]PrefixInfo, error) {
	img, err := backoff.Retry(ctx, nil, retryAttempts, retryBase, func() (v1.Image, error) {
		return remote.Image(r.ref, r.remoteOptions(ctx)...)
	})
	if err != nil {
		return "", nil, nil, fmt.Errorf("fetch image: %w", err)
	}

	cfg, err := img.ConfigFile()
	if err != nil {
		return "", nil, nil, fmt.Errorf("get config: %w", err)
	}

	rootHash := cfg.Config.Labels[labelRoot]
	if rootHash == "" {
		return "", nil, nil, fmt.Errorf("missing %s label", labelRoot)
	}

	var remotePrefixes map[string]PrefixInfo
	if prefixJSON := cfg.Config.Labels[labelPrefixes]; prefixJSON != "" {
		if err := json.Unmarshal([]byte(prefixJSON), &remotePrefixes); err != nil {
			return "", nil, nil, fmt.Errorf("parse prefixes: %w", err)
		}
	}

	neededLayers := make(map[string]bool)
	for prefix, remoteInfo := range remotePrefixes {
		localInfo, exists := localPrefixes[prefix]
		if !exists || localInfo.Hash != remoteInfo.Hash {
			neededLayers[remoteInfo.Layer] = true
		}
	}

	layers, err := img.Layers()
	if err != nil {
		return "", nil, nil, fmt.Errorf("get layers: %w", err)
	}

	var neededLayerList []v1.Layer
	for _, layer := range layers {
		digest, err := layer.Digest()
		if err != nil {
			continue
		}
		if neededLayers[digest.String()] {
			neededLayerList = append(neededLayerList, layer)
		}
	}

	r.log.WithField("layers", len(neededLayerList)).Info("pull: downloading")

	var mu sync.Mutex
	var entries []store.Entry

	p := pool.New().WithMaxGoroutines(r.concurrency).WithContext(ctx).WithCancelOnError()

	for _, layer := range neededLayerList {
		layer := layer
		p.Go(func(ctx context.Context) error {
			rc, err := layer.Uncompressed()
			if err != nil {
				return fmt.Errorf("read layer: %w", err)
			}
			data, err := io.ReadAll(rc)
			if cerr := rc.Close(); cerr != nil {
				return fmt.Errorf("close layer: %w", cerr)
			}
			if err != nil {
				return fmt.Errorf("read layer: %w", err)
			}

			unpacked, err := UnpackLayer(data)
			if err != nil {
				return fmt.Errorf("unpack layer: %w", err)
			}

			mu.Lock()
			entries = append(entries, unpacked...)
			mu.Unlock()
			return nil
		})
	}

	if err := p.Wait(); err != nil {
		return "", nil, nil, err
	}

	r.log.WithField("entries", len(entries)).Info("pull: done")
	return rootHash, entries, remotePrefixes, nil
}

func (r *OCIRemote) remoteOptions(ctx context.Context) []remote.Option {
	options := []remote.Option{remote.WithContext(ctx)}
	if r.auth != nil {
		username, password, err := r.auth.Authenticate(r.Registry())
		if err == nil && username != "" {
			return append(options, remote.WithAuth(&authn.Basic{
				Username: username,
				Password: password,
			}))
		}
	}
	return append(options, remote.WithAuthFromKeychain(authn.DefaultKeychain))
}
