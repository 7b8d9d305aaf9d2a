// ABOUTME: Assembler merges template files with a generated descriptor and images, then signs and packs
// ABOUTME: Concurrent assemblies are bounded by a weighted semaphore so signing never starves request handling

package bundle

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/2389/wallet-gateway/internal/signing"
)

// IconName must be present in every template.
const IconName = "icon.png"

// Signer produces a detached signature over manifest bytes.
type Signer interface {
	Sign(manifest []byte) ([]byte, error)
}

// Options configures an Assembler.
type Options struct {
	// AuthToken is injected as authenticationToken when non-empty.
	AuthToken string
	// WebServiceURL is injected as webServiceURL when non-empty.
	WebServiceURL string
	// TypeID and TeamID override the template's identifiers when non-empty.
	TypeID string
	TeamID string
	// Workers bounds concurrent assemblies. Zero means runtime.NumCPU().
	Workers int
	Logger  *slog.Logger
	Now     func() time.Time
}

// Request is one assembly.
type Request struct {
	Template   string
	Descriptor Descriptor
	Images     []signing.File
}

// Assembler builds signed bundles. It is safe for concurrent use.
type Assembler struct {
	store  Store
	signer Signer
	opts   Options
	sem    *semaphore.Weighted
	logger *slog.Logger
}

// NewAssembler creates an Assembler reading templates from store.
func NewAssembler(store Store, signer Signer, opts Options) *Assembler {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{
		store:  store,
		signer: signer,
		opts:   opts,
		sem:    semaphore.NewWeighted(int64(opts.Workers)),
		logger: logger.With("component", "assembler"),
	}
}

// Assemble validates the descriptor, merges it into the template, and
// returns the signed archive bytes. Nothing is written to storage.
func (a *Assembler) Assemble(ctx context.Context, req Request) ([]byte, error) {
	if err := a.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for assembly slot: %w", err)
	}
	defer a.sem.Release(1)

	if req.Descriptor == nil {
		return nil, &FieldError{Field: "descriptor", Reason: "is required"}
	}
	if err := req.Descriptor.Validate(); err != nil {
		return nil, err
	}
	kind := req.Descriptor.Kind()

	files, err := a.store.Template(ctx, req.Template)
	if err != nil {
		return nil, err
	}

	descIdx, hasIcon := -1, false
	for i, f := range files {
		switch f.Name {
		case kind.DescriptorFile():
			descIdx = i
		case IconName:
			hasIcon = true
		}
	}
	if descIdx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingTemplateFile, kind.DescriptorFile())
	}
	if !hasIcon {
		return nil, fmt.Errorf("%w: %s", ErrMissingTemplateFile, IconName)
	}

	descriptor, err := a.mergeDescriptor(files[descIdx].Data, req.Descriptor)
	if err != nil {
		return nil, err
	}
	files[descIdx].Data = descriptor

	files, err = overlayImages(files, req.Images, kind)
	if err != nil {
		return nil, err
	}

	_, manifest, err := signing.BuildManifest(files)
	if err != nil {
		return nil, err
	}
	sig, err := a.signer.Sign(manifest)
	if err != nil {
		return nil, err
	}

	archive, err := pack(files, manifest, sig, a.opts.Now())
	if err != nil {
		return nil, err
	}

	a.logger.Debug("assembled bundle",
		"kind", kind,
		"template", req.Template,
		"files", len(files),
		"bytes", len(archive),
	)
	return archive, nil
}

// mergeDescriptor overlays generated fields on the template descriptor and
// injects the callback settings.
func (a *Assembler) mergeDescriptor(base []byte, d Descriptor) ([]byte, error) {
	doc := make(map[string]any)
	if err := json.Unmarshal(base, &doc); err != nil {
		return nil, fmt.Errorf("parsing template %s: %w", d.Kind().DescriptorFile(), err)
	}

	fields, err := d.Fields()
	if err != nil {
		return nil, err
	}
	for k, v := range fields {
		doc[k] = v
	}
	if a.opts.AuthToken != "" {
		doc["authenticationToken"] = a.opts.AuthToken
	}
	if a.opts.WebServiceURL != "" {
		doc["webServiceURL"] = a.opts.WebServiceURL
	}
	if a.opts.TypeID != "" {
		doc[d.Kind().TypeIdentifierKey()] = a.opts.TypeID
	}
	if a.opts.TeamID != "" {
		doc["teamIdentifier"] = a.opts.TeamID
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", d.Kind().DescriptorFile(), err)
	}
	return data, nil
}

// overlayImages replaces same-named template files and appends the rest.
func overlayImages(files, images []signing.File, kind Kind) ([]signing.File, error) {
	index := make(map[string]int, len(files))
	for i, f := range files {
		index[f.Name] = i
	}
	for i, img := range images {
		if err := signing.ValidateName(img.Name); err != nil {
			return nil, &FieldError{Field: fmt.Sprintf("images[%d]", i), Reason: err.Error()}
		}
		if img.Name == kind.DescriptorFile() {
			return nil, &FieldError{Field: fmt.Sprintf("images[%d]", i), Reason: "must not replace the descriptor"}
		}
		if j, ok := index[img.Name]; ok {
			files[j].Data = img.Data
			continue
		}
		index[img.Name] = len(files)
		files = append(files, img)
	}
	return files, nil
}
