// Package mediatype holds the closed table of content types a fragment may be
// stored as and the conversion edges between them.
//
// The table is declarative. Adding a format means adding an Entry (and, in
// package convert, a converter for every new edge); dispatch code never
// switches on MIME strings.
//
// A Registry is immutable once built and safe to share across goroutines.
package mediatype

import (
	"fmt"
	"mime"
	"slices"
	"strings"
	"sync"
)

// Family groups MIME types that share a decoder. Converters are keyed by the
// source family rather than the raw MIME string.
type Family int

const (
	FamilyText Family = iota + 1
	FamilyMarkdown
	FamilyHTML
	FamilyCSV
	FamilyJSON
	FamilyYAML
	FamilyImage
)

// String returns the family name.
func (f Family) String() string {
	switch f {
	case FamilyText:
		return "text"
	case FamilyMarkdown:
		return "markdown"
	case FamilyHTML:
		return "html"
	case FamilyCSV:
		return "csv"
	case FamilyJSON:
		return "json"
	case FamilyYAML:
		return "yaml"
	case FamilyImage:
		return "image"
	default:
		return fmt.Sprintf("family(%d)", int(f))
	}
}

// Textual reports whether payloads of the family are UTF-8 text.
func (f Family) Textual() bool {
	return f != FamilyImage && f != 0
}

// Entry describes one supported MIME type.
type Entry struct {
	// MIME is the bare type/subtype, lower-case, without parameters
	MIME string

	// Family selects the decoder used for conversions out of this type
	Family Family

	// Extensions map to MIME on retrieval; the first is canonical
	Extensions []string

	// Ingest marks the type as acceptable at fragment creation
	Ingest bool

	// Targets lists the types this one converts into, in preference order.
	// The type itself is implied and need not be listed.
	Targets []string
}

// Edge is a legal conversion from a source family into a target MIME type.
type Edge struct {
	Source Family
	Target string
}

// String formats the edge for error messages.
func (e Edge) String() string {
	return e.Source.String() + " -> " + e.Target
}

// Registry is an immutable, validated view over a list of entries.
type Registry struct {
	entries []Entry
	byMIME  map[string]int
	byExt   map[string]string
	ingest  map[string]struct{}
}

var imageTypes = []string{"image/png", "image/jpeg", "image/webp", "image/gif", "image/avif"}

// DefaultEntries returns the built-in table.
func DefaultEntries() []Entry {
	entries := []Entry{
		{MIME: "text/plain", Family: FamilyText, Extensions: []string{".txt"}, Ingest: true},
		{MIME: "text/markdown", Family: FamilyMarkdown, Extensions: []string{".md"}, Ingest: true,
			Targets: []string{"text/html", "text/plain"}},
		{MIME: "text/html", Family: FamilyHTML, Extensions: []string{".html"}, Ingest: true,
			Targets: []string{"text/plain"}},
		{MIME: "text/csv", Family: FamilyCSV, Extensions: []string{".csv"}, Ingest: true,
			Targets: []string{"application/json", "text/plain"}},
		{MIME: "application/json", Family: FamilyJSON, Extensions: []string{".json"}, Ingest: true,
			Targets: []string{"application/yaml", "text/plain"}},
		{MIME: "application/yaml", Family: FamilyYAML, Extensions: []string{".yaml", ".yml"}, Ingest: true,
			Targets: []string{"application/json", "text/plain"}},
	}

	exts := map[string][]string{
		"image/png":  {".png"},
		"image/jpeg": {".jpg"},
		"image/webp": {".webp"},
		"image/gif":  {".gif"},
		"image/avif": {".avif"},
	}
	for _, m := range imageTypes {
		entries = append(entries, Entry{
			MIME:       m,
			Family:     FamilyImage,
			Extensions: exts[m],
			Ingest:     true,
			Targets:    slices.DeleteFunc(slices.Clone(imageTypes), func(t string) bool { return t == m }),
		})
	}
	return entries
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the registry built from DefaultEntries. It is constructed
// once per process.
func Default() *Registry {
	defaultOnce.Do(func() {
		r, err := New(DefaultEntries())
		if err != nil {
			panic(fmt.Sprintf("mediatype: invalid default table: %v", err))
		}
		defaultRegistry = r
	})
	return defaultRegistry
}

// New validates entries and builds a Registry.
//
// It fails when a MIME type or extension is declared twice, an extension
// lacks its leading dot, or a target names a type missing from the table.
func New(entries []Entry) (*Registry, error) {
	r := &Registry{
		entries: make([]Entry, len(entries)),
		byMIME:  make(map[string]int, len(entries)),
		byExt:   make(map[string]string),
		ingest:  make(map[string]struct{}),
	}

	for i, e := range entries {
		e.MIME = strings.ToLower(e.MIME)
		e.Extensions = slices.Clone(e.Extensions)
		e.Targets = slices.Clone(e.Targets)

		if e.MIME == "" || !strings.Contains(e.MIME, "/") {
			return nil, fmt.Errorf("entry %d: invalid MIME type %q", i, e.MIME)
		}
		if e.Family == 0 {
			return nil, fmt.Errorf("%s: family is required", e.MIME)
		}
		if _, dup := r.byMIME[e.MIME]; dup {
			return nil, fmt.Errorf("%s: declared twice", e.MIME)
		}
		r.byMIME[e.MIME] = i

		for _, ext := range e.Extensions {
			if !strings.HasPrefix(ext, ".") {
				return nil, fmt.Errorf("%s: extension %q must start with a dot", e.MIME, ext)
			}
			ext = strings.ToLower(ext)
			if owner, dup := r.byExt[ext]; dup {
				return nil, fmt.Errorf("%s: extension %q already maps to %s", e.MIME, ext, owner)
			}
			r.byExt[ext] = e.MIME
		}

		if e.Ingest {
			r.ingest[e.MIME] = struct{}{}
			if e.Family.Textual() {
				r.ingest[e.MIME+"; charset=utf-8"] = struct{}{}
			}
		}
		r.entries[i] = e
	}

	for _, e := range r.entries {
		for _, t := range e.Targets {
			if _, ok := r.byMIME[t]; !ok {
				return nil, fmt.Errorf("%s: target %q is not a declared type", e.MIME, t)
			}
		}
	}

	return r, nil
}

// IsSupported reports whether value, a full Content-Type header value, is an
// accepted ingest type. The match is exact: "text/plain; charset=utf-8" is
// accepted, "text/plain;charset=UTF-8" is not. Use Canonical first to accept
// spelling variants.
func (r *Registry) IsSupported(value string) bool {
	_, ok := r.ingest[value]
	return ok
}

// Lookup returns the entry for a bare MIME type.
func (r *Registry) Lookup(mimeType string) (Entry, bool) {
	i, ok := r.byMIME[strings.ToLower(mimeType)]
	if !ok {
		return Entry{}, false
	}
	return r.entries[i], true
}

// Formats returns the types mimeType may be rendered as: itself first, then
// its targets in declaration order. Unknown types yield nil.
func (r *Registry) Formats(mimeType string) []string {
	e, ok := r.Lookup(mimeType)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(e.Targets)+1)
	out = append(out, e.MIME)
	for _, t := range e.Targets {
		if t != e.MIME {
			out = append(out, t)
		}
	}
	return out
}

// TypeForExtension resolves a file extension (".json" or "json") to its MIME
// type.
func (r *Registry) TypeForExtension(ext string) (string, bool) {
	if ext == "" {
		return "", false
	}
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	m, ok := r.byExt[ext]
	return m, ok
}

// Extension returns the canonical extension of mimeType.
func (r *Registry) Extension(mimeType string) (string, bool) {
	e, ok := r.Lookup(mimeType)
	if !ok || len(e.Extensions) == 0 {
		return "", false
	}
	return e.Extensions[0], true
}

// Edges returns every non-identity conversion edge in the table.
func (r *Registry) Edges() []Edge {
	var edges []Edge
	seen := make(map[Edge]struct{})
	for _, e := range r.entries {
		for _, t := range e.Targets {
			if t == e.MIME {
				continue
			}
			edge := Edge{Source: e.Family, Target: t}
			if _, ok := seen[edge]; ok {
				continue
			}
			seen[edge] = struct{}{}
			edges = append(edges, edge)
		}
	}
	return edges
}

// Entries returns a copy of the table.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	for i, e := range r.entries {
		e.Extensions = slices.Clone(e.Extensions)
		e.Targets = slices.Clone(e.Targets)
		out[i] = e
	}
	return out
}

// Essence strips parameters from a Content-Type value:
// "text/html; charset=utf-8" becomes "text/html". Unparseable values are
// returned trimmed and lower-cased up to the first semicolon.
func Essence(value string) string {
	if mt, _, err := mime.ParseMediaType(value); err == nil {
		return mt
	}
	base, _, _ := strings.Cut(value, ";")
	return strings.ToLower(strings.TrimSpace(base))
}

// Canonical normalises a Content-Type header: lower-case type, parameters in
// sorted order separated by "; ", and the charset value lower-cased.
func Canonical(value string) (string, error) {
	mt, params, err := mime.ParseMediaType(value)
	if err != nil {
		return "", fmt.Errorf("parse content type %q: %w", value, err)
	}
	if cs, ok := params["charset"]; ok {
		params["charset"] = strings.ToLower(cs)
	}

	names := make([]string, 0, len(params))
	for k := range params {
		names = append(names, k)
	}
	slices.Sort(names)

	var b strings.Builder
	b.WriteString(mt)
	for _, k := range names {
		b.WriteString("; ")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(params[k])
	}
	return b.String(), nil
}
