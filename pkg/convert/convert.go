// Package convert renders stored fragment payloads into other content types.
//
// An Engine pairs the immutable mediatype.Registry with a table of
// converters keyed by (source family, target MIME). The registry decides
// whether an edge is legal; the table decides how to perform it. NewEngine
// refuses to build when a legal edge has no converter, so the matrix is
// closed at startup rather than at request time.
//
// Error contract:
//   - ErrUnsupportedMediaType: unknown extension, or no edge from the stored
//     type to the requested one
//   - ErrConversionFailed: the edge exists but the payload could not be
//     decoded or transformed
package convert

import (
	"context"
	"fmt"
	"time"

	"github.com/marmos91/fragments/pkg/convert/imagecodec"
	"github.com/marmos91/fragments/pkg/errs"
	"github.com/marmos91/fragments/pkg/mediatype"
	"github.com/marmos91/fragments/pkg/metrics"
)

// Converter transforms data stored as source (a bare MIME type) into the
// target type of the edge it is registered under.
//
// Converters are pure: the same input always yields the same output.
type Converter func(ctx context.Context, source string, data []byte) ([]byte, error)

// Engine dispatches conversion requests. It is immutable after NewEngine and
// safe for concurrent use.
type Engine struct {
	registry   *mediatype.Registry
	converters map[mediatype.Edge]Converter
	metrics    metrics.FragmentMetrics
}

// Option customises an Engine.
type Option func(*Engine)

// WithConverter registers fn for edge, replacing any built-in converter.
func WithConverter(edge mediatype.Edge, fn Converter) Option {
	return func(e *Engine) {
		e.converters[edge] = fn
	}
}

// WithMetrics records every conversion attempt into m.
func WithMetrics(m metrics.FragmentMetrics) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// DefaultConverters returns the built-in converter table.
func DefaultConverters() map[mediatype.Edge]Converter {
	table := make(map[mediatype.Edge]Converter)
	add := func(source mediatype.Family, target string, fn Converter) {
		table[mediatype.Edge{Source: source, Target: target}] = fn
	}

	add(mediatype.FamilyMarkdown, "text/html", text(markdownToHTML))
	add(mediatype.FamilyMarkdown, "text/plain", text(markdownToText))
	add(mediatype.FamilyHTML, "text/plain", text(htmlToText))
	add(mediatype.FamilyCSV, "application/json", text(csvToJSON))
	add(mediatype.FamilyCSV, "text/plain", text(csvToText))
	add(mediatype.FamilyJSON, "application/yaml", text(jsonToYAML))
	add(mediatype.FamilyJSON, "text/plain", text(jsonToText))
	add(mediatype.FamilyYAML, "application/json", text(yamlToJSON))
	add(mediatype.FamilyYAML, "text/plain", text(yamlToText))

	for _, target := range imagecodec.Types() {
		add(mediatype.FamilyImage, target, imageTo(target))
	}
	return table
}

// NewEngine builds an engine over registry using the built-in converters
// plus any supplied options.
//
// Returns an error if an edge declared by registry has no converter.
func NewEngine(registry *mediatype.Registry, opts ...Option) (*Engine, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry is required")
	}

	e := &Engine{
		registry:   registry,
		converters: DefaultConverters(),
		metrics:    metrics.NewNoopFragmentMetrics(),
	}
	for _, opt := range opts {
		opt(e)
	}

	for _, edge := range registry.Edges() {
		if _, ok := e.converters[edge]; !ok {
			return nil, fmt.Errorf("no converter for edge %s", edge)
		}
	}
	return e, nil
}

// Registry returns the registry the engine was built over.
func (e *Engine) Registry() *mediatype.Registry {
	return e.registry
}

// Resolve checks that a payload stored as sourceType may be rendered as the
// type named by ext, and returns that type. An empty ext resolves to the bare
// source type.
func (e *Engine) Resolve(sourceType, ext string) (string, error) {
	const op = "convert.Resolve"

	source := mediatype.Essence(sourceType)
	if ext == "" {
		return source, nil
	}

	target, ok := e.registry.TypeForExtension(ext)
	if !ok {
		return "", errs.Newf(errs.ErrUnsupportedMediaType, op, "unknown extension %q", ext)
	}
	if !e.canConvert(source, target) {
		return "", errs.Newf(errs.ErrUnsupportedMediaType, op,
			"cannot convert %s to %s", source, target)
	}
	return target, nil
}

// Convert renders data, stored as sourceType, into the type named by ext.
//
// sourceType is the stored Content-Type value; parameters are ignored. ext
// is a file extension with or without its leading dot. An empty ext returns
// data unchanged together with the bare source type.
//
// Returns the converted bytes and their MIME type.
func (e *Engine) Convert(ctx context.Context, sourceType string, data []byte, ext string) ([]byte, string, error) {
	const op = "convert.Convert"

	// ===== Step 1: Resolve the extension and check the edge exists =====
	target, err := e.Resolve(sourceType, ext)
	if err != nil {
		return nil, "", err
	}

	// ===== Step 2: Identity when the target is the stored type =====
	source := mediatype.Essence(sourceType)
	if target == source {
		return data, source, nil
	}

	// ===== Step 3: Dispatch =====
	if err := ctx.Err(); err != nil {
		return nil, "", errs.Wrap(errs.ErrConversionFailed, op, err)
	}

	entry, _ := e.registry.Lookup(source)
	edge := mediatype.Edge{Source: entry.Family, Target: target}
	fn, ok := e.converters[edge]
	if !ok {
		return nil, "", errs.Newf(errs.ErrUnsupportedMediaType, op, "no converter for %s", edge)
	}

	start := time.Now()
	out, err := fn(ctx, source, data)
	e.metrics.RecordConversion(source, target, time.Since(start), err)

	// ===== Step 4: Failures are payload errors =====
	if err != nil {
		return nil, "", &errs.Error{
			Code:    errs.ErrConversionFailed,
			Op:      op,
			Message: fmt.Sprintf("convert %s to %s", source, target),
			Err:     err,
		}
	}
	return out, target, nil
}

// canConvert reports whether target is among source's formats. Unknown
// sources have no formats.
func (e *Engine) canConvert(source, target string) bool {
	for _, f := range e.registry.Formats(source) {
		if f == target {
			return true
		}
	}
	return false
}
