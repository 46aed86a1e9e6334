// Package build turns a tool host into a deployable artifact directory.
//
// An artifact holds exactly three files: the bundled executable, the tool
// manifest (manifest.json) and packaging metadata (package.yaml). Archive
// and upload steps belong to the deployment pipeline, not this package.
package build

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/petal-labs/toolhost/tool"
)

// Artifact file names.
const (
	ManifestFile = "manifest.json"
	MetadataFile = "package.yaml"
)

var (
	// ErrEmptyManifest is returned when the target registers no tools.
	ErrEmptyManifest = errors.New("build: manifest has no tools")
	// ErrInvalidManifest is returned when a manifest entry is unusable.
	ErrInvalidManifest = errors.New("build: invalid manifest")
	// ErrProbeFailed is returned when a probe call fails on the target.
	ErrProbeFailed = errors.New("build: probe call failed")
)

// Target is anything that can describe and serve its tools.
type Target interface {
	Manifest() tool.Manifest
	HandleToolCall(ctx context.Context, req tool.CallRequest) tool.Response
}

// Options configures Package.
type Options struct {
	// OutDir receives the artifact. It is created if missing.
	OutDir string
	// Name of the package. Defaults to the entrypoint's base name.
	Name    string
	Version string
	// Entrypoint is the executable to bundle. Defaults to the running binary.
	Entrypoint string
	// Probes are calls dispatched against the target before packaging; any
	// 5xx response aborts the build.
	Probes []tool.CallRequest
	Logger *slog.Logger
	Now    func() time.Time
}

// Bundle describes the bundled executable.
type Bundle struct {
	Path   string `yaml:"path" json:"path"`
	SHA256 string `yaml:"sha256" json:"sha256"`
	Size   int64  `yaml:"size" json:"size"`
}

// Metadata is the content of package.yaml.
type Metadata struct {
	BuildID         string    `yaml:"build_id" json:"build_id"`
	Name            string    `yaml:"name" json:"name"`
	Version         string    `yaml:"version,omitempty" json:"version,omitempty"`
	CreatedAt       time.Time `yaml:"created_at" json:"created_at"`
	ManifestVersion string    `yaml:"manifest_version" json:"manifest_version"`
	Manifest        string    `yaml:"manifest" json:"manifest"`
	Bundle          Bundle    `yaml:"bundle" json:"bundle"`
	Tools           []string  `yaml:"tools" json:"tools"`
}

// Artifact is the result of a successful Package.
type Artifact struct {
	Dir          string
	BundlePath   string
	ManifestPath string
	MetadataPath string
	Metadata     Metadata
}

// Package validates target's manifest, runs probes, and writes the artifact.
func Package(ctx context.Context, target Target, opts Options) (Artifact, error) {
	if target == nil {
		return Artifact{}, errors.New("build: nil target")
	}
	if strings.TrimSpace(opts.OutDir) == "" {
		return Artifact{}, errors.New("build: output directory is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	entrypoint := opts.Entrypoint
	if entrypoint == "" {
		exe, err := os.Executable()
		if err != nil {
			return Artifact{}, fmt.Errorf("build: resolve entrypoint: %w", err)
		}
		entrypoint = exe
	}
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(entrypoint), filepath.Ext(entrypoint))
	}

	manifest := target.Manifest()
	if err := ValidateManifest(manifest); err != nil {
		return Artifact{}, err
	}
	if err := probe(ctx, target, opts.Probes); err != nil {
		return Artifact{}, err
	}

	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return Artifact{}, fmt.Errorf("build: create output directory: %w", err)
	}

	art := Artifact{
		Dir:          opts.OutDir,
		BundlePath:   filepath.Join(opts.OutDir, filepath.Base(entrypoint)),
		ManifestPath: filepath.Join(opts.OutDir, ManifestFile),
		MetadataPath: filepath.Join(opts.OutDir, MetadataFile),
	}

	var bundle Bundle
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		bundle, err = copyBundle(gctx, entrypoint, art.BundlePath)
		return err
	})
	g.Go(func() error {
		return writeJSON(art.ManifestPath, manifest)
	})
	if err := g.Wait(); err != nil {
		return Artifact{}, err
	}
	bundle.Path = filepath.Base(art.BundlePath)

	art.Metadata = Metadata{
		BuildID:         uuid.NewString(),
		Name:            name,
		Version:         opts.Version,
		CreatedAt:       now().UTC(),
		ManifestVersion: manifest.ManifestVersion,
		Manifest:        ManifestFile,
		Bundle:          bundle,
		Tools:           manifest.Names(),
	}
	if err := writeYAML(art.MetadataPath, art.Metadata); err != nil {
		return Artifact{}, err
	}

	logger.Info("artifact packaged",
		"build_id", art.Metadata.BuildID,
		"dir", art.Dir,
		"tools", len(art.Metadata.Tools),
		"bundle_sha256", bundle.SHA256,
	)
	return art, nil
}

// ValidateManifest checks that m lists at least one tool and that every
// name is valid and unique.
func ValidateManifest(m tool.Manifest) error {
	if len(m.Tools) == 0 {
		return ErrEmptyManifest
	}
	seen := make(map[string]struct{}, len(m.Tools))
	for i, entry := range m.Tools {
		if err := tool.ValidateName(entry.Name); err != nil {
			return fmt.Errorf("%w: tools[%d]: %v", ErrInvalidManifest, i, err)
		}
		if _, dup := seen[entry.Name]; dup {
			return fmt.Errorf("%w: tools[%d]: duplicate name %q", ErrInvalidManifest, i, entry.Name)
		}
		seen[entry.Name] = struct{}{}
	}
	return nil
}

// ReadMetadata loads package.yaml from an artifact directory.
func ReadMetadata(dir string) (Metadata, error) {
	data, err := os.ReadFile(filepath.Join(dir, MetadataFile)) // #nosec G304 -- artifact path from caller
	if err != nil {
		return Metadata{}, fmt.Errorf("build: read metadata: %w", err)
	}
	var meta Metadata
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return Metadata{}, fmt.Errorf("build: parse metadata: %w", err)
	}
	return meta, nil
}

func probe(ctx context.Context, target Target, probes []tool.CallRequest) error {
	for _, req := range probes {
		resp := target.HandleToolCall(ctx, req)
		if resp.StatusCode >= 500 {
			return fmt.Errorf("%w: %s returned %d: %s", ErrProbeFailed, req.Name, resp.StatusCode, resp.Body)
		}
	}
	return nil
}

func copyBundle(ctx context.Context, src, dst string) (Bundle, error) {
	in, err := os.Open(src) // #nosec G304 -- entrypoint path from caller
	if err != nil {
		return Bundle{}, fmt.Errorf("build: open entrypoint: %w", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return Bundle{}, fmt.Errorf("build: stat entrypoint: %w", err)
	}
	if info.IsDir() {
		return Bundle{}, fmt.Errorf("build: entrypoint %s is a directory", src)
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755) // #nosec G302 -- bundle must be executable
	if err != nil {
		return Bundle{}, fmt.Errorf("build: create bundle: %w", err)
	}

	hash := sha256.New()
	n, copyErr := io.Copy(io.MultiWriter(out, hash), contextReader{ctx: ctx, r: in})
	closeErr := out.Close()
	if copyErr != nil {
		return Bundle{}, fmt.Errorf("build: copy bundle: %w", copyErr)
	}
	if closeErr != nil {
		return Bundle{}, fmt.Errorf("build: close bundle: %w", closeErr)
	}
	return Bundle{SHA256: hex.EncodeToString(hash.Sum(nil)), Size: n}, nil
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("build: encode %s: %w", filepath.Base(path), err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil { // #nosec G306 -- artifact files are world-readable
		return fmt.Errorf("build: write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func writeYAML(path string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("build: encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { // #nosec G306 -- artifact files are world-readable
		return fmt.Errorf("build: write %s: %w", filepath.Base(path), err)
	}
	return nil
}
