// Copyright 2026 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package params

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

// Parser builds file parameters for one submission. Auto-generated names use
// per-kind counters scoped to the parser, so ordering is reproducible within
// a job or a task-table ingestion.
type Parser struct {
	inputIdx  int
	outputIdx int
	mountIdx  int
}

// NewParser creates a parser with fresh auto-naming counters.
func NewParser() *Parser {
	return &Parser{}
}

var uriSchemeRe = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://`)

// splitScheme determines the file provider from the URI scheme and strips it.
// uriPrefix is re-attached to the normalized path; dockerRoot anchors the
// provider's container paths.
func splitScheme(raw string) (provider FileProvider, rest, uriPrefix, dockerRoot string, err error) {
	switch {
	case strings.HasPrefix(raw, "gs://"):
		rest = strings.TrimPrefix(raw, "gs://")
		if rest == "" || strings.HasPrefix(rest, "/") {
			return "", "", "", "", Validationf("invalid Cloud Storage path %q: missing bucket", raw)
		}
		return FileProviderGCS, rest, "gs://", "gs", nil
	case strings.HasPrefix(raw, "file://"):
		rest = strings.TrimPrefix(raw, "file://")
		if rest == "" {
			return "", "", "", "", Validationf("invalid file path %q", raw)
		}
		return FileProviderLocal, rest, "", "file", nil
	case uriSchemeRe.MatchString(raw):
		return "", "", "", "", Validationf("unsupported URI scheme in %q", raw)
	case raw == "":
		return "", "", "", "", Validationf("empty path")
	default:
		return FileProviderLocal, raw, "", "file", nil
	}
}

// validateURIChars rejects constructs the localization layer cannot express:
// character classes, single-character wildcards, and directory-level globs.
// Only a filename-level '*' is supported.
func validateURIChars(raw, rest string) error {
	if strings.ContainsAny(rest, "[]?") {
		return Validationf("invalid path %q: '[', ']', and '?' are not supported", raw)
	}
	if strings.Contains(rest, "**") {
		return Validationf("invalid path %q: recursive wildcards ('**') are not supported", raw)
	}
	if dir := path.Dir(rest); strings.Contains(dir, "*") {
		return Validationf("invalid path %q: directory wildcards are not supported", raw)
	}
	return nil
}

// directoryFmt returns p with exactly one trailing separator.
func directoryFmt(p string) string {
	return strings.TrimRight(p, "/") + "/"
}

// rewriteLocal maps a cleaned local path to its container-relative form.
// Relative semantics are preserved with fixed token substitutions so the
// caller's filesystem layout is never reproduced verbatim in the container.
func rewriteLocal(p string) string {
	if strings.HasPrefix(p, "~/") {
		p = "_home_/" + p[2:]
	}
	var b strings.Builder
	for strings.HasPrefix(p, "../") {
		b.WriteString("_dotdot_/")
		p = p[3:]
	}
	if p == ".." {
		b.WriteString("_dotdot_")
		p = ""
	}
	p = strings.TrimPrefix(p, "/")
	if p == "." {
		p = ""
	}
	return b.String() + p
}

// normalize cleans the scheme-stripped path, collapsing '.' and '..'
// indirection, and returns both the normalized path and its docker rewrite.
func normalize(provider FileProvider, rest string) (norm, rewritten string) {
	trailing := strings.HasSuffix(rest, "/")
	norm = path.Clean(rest)
	if provider == FileProviderGCS {
		rewritten = norm
	} else {
		rewritten = rewriteLocal(norm)
	}
	if trailing {
		norm = directoryFmt(norm)
		rewritten = directoryFmt(rewritten)
	}
	return norm, rewritten
}

func (p *Parser) nextName(kind FileParamKind) string {
	switch kind {
	case KindInput:
		n := p.inputIdx
		p.inputIdx++
		return fmt.Sprintf("INPUT_%d", n)
	case KindOutput:
		n := p.outputIdx
		p.outputIdx++
		return fmt.Sprintf("OUTPUT_%d", n)
	default:
		n := p.mountIdx
		p.mountIdx++
		return fmt.Sprintf("MOUNT_%d", n)
	}
}

func (p *Parser) resolveName(kind FileParamKind, name string) (string, error) {
	if name == "" {
		return p.nextName(kind), nil
	}
	if !envNameRe.MatchString(name) {
		return "", Validationf("invalid parameter name %q", name)
	}
	return name, nil
}

// joinDocker joins container path segments, dropping empties.
func joinDocker(segments ...string) string {
	kept := segments[:0:0]
	for _, s := range segments {
		if s != "" {
			kept = append(kept, s)
		}
	}
	return strings.Join(kept, "/")
}

// parseDirectory handles the recursive (directory-tree) form shared by
// inputs, outputs, and mounts: the URI and the container path both end in
// exactly one separator.
func parseDirectory(kind FileParamKind, name, raw string) (FileParam, error) {
	provider, rest, uriPrefix, dockerRoot, err := splitScheme(raw)
	if err != nil {
		return FileParam{}, err
	}
	if strings.Contains(rest, "*") {
		return FileParam{}, Validationf("invalid path %q: wildcards are not supported with recursive parameters", raw)
	}
	if err := validateURIChars(raw, rest); err != nil {
		return FileParam{}, err
	}
	norm, rewritten := normalize(provider, directoryFmt(rest))
	return FileParam{
		Kind:       kind,
		Name:       name,
		Value:      raw,
		DockerPath: directoryFmt(joinDocker(kind.String(), dockerRoot, strings.TrimRight(rewritten, "/"))),
		URI:        URI{Path: uriPrefix + norm},
		Recursive:  true,
		Provider:   provider,
	}, nil
}

// ParseInput parses one input file parameter. An empty name is auto-assigned.
func (p *Parser) ParseInput(name, raw string, recursive bool) (FileParam, error) {
	name, err := p.resolveName(KindInput, name)
	if err != nil {
		return FileParam{}, err
	}
	if recursive {
		return parseDirectory(KindInput, name, raw)
	}

	provider, rest, uriPrefix, dockerRoot, err := splitScheme(raw)
	if err != nil {
		return FileParam{}, err
	}
	if strings.HasSuffix(rest, "/") {
		return FileParam{}, Validationf("invalid input %q: directories require the recursive form", raw)
	}
	if err := validateURIChars(raw, rest); err != nil {
		return FileParam{}, err
	}
	norm, _ := normalize(provider, rest)
	dir, base := path.Split(norm)
	_, rewrittenDir := normalize(provider, strings.TrimSuffix(dir, "/"))
	if dir == "" {
		rewrittenDir = ""
	}

	fp := FileParam{
		Kind:      KindInput,
		Name:      name,
		Value:     raw,
		URI:       URI{Path: uriPrefix + dir, Basename: base},
		Provider:  provider,
		Recursive: false,
	}
	if strings.Contains(base, "*") {
		// The match cardinality is unknown ahead of time, so the container
		// path is the enclosing directory.
		fp.DockerPath = directoryFmt(joinDocker(KindInput.String(), dockerRoot, rewrittenDir))
	} else {
		fp.DockerPath = joinDocker(KindInput.String(), dockerRoot, rewrittenDir, base)
	}
	return fp, nil
}

// ParseOutput parses one output file parameter. A non-recursive output must
// name a file or a filename pattern, never a directory.
func (p *Parser) ParseOutput(name, raw string, recursive bool) (FileParam, error) {
	name, err := p.resolveName(KindOutput, name)
	if err != nil {
		return FileParam{}, err
	}
	if recursive {
		return parseDirectory(KindOutput, name, raw)
	}

	provider, rest, uriPrefix, dockerRoot, err := splitScheme(raw)
	if err != nil {
		return FileParam{}, err
	}
	if strings.HasSuffix(rest, "/") {
		return FileParam{}, Validationf("invalid output %q: must name a file or wildcard pattern, not a directory", raw)
	}
	if err := validateURIChars(raw, rest); err != nil {
		return FileParam{}, err
	}
	norm, rewritten := normalize(provider, rest)
	dir, base := path.Split(norm)

	fp := FileParam{
		Kind:       KindOutput,
		Name:       name,
		Value:      raw,
		DockerPath: joinDocker(KindOutput.String(), dockerRoot, rewritten),
		Provider:   provider,
		Recursive:  false,
	}
	if strings.Contains(base, "*") {
		// Delocalizing one-or-many matches must behave identically whatever
		// the match count, so the remote target is the directory.
		fp.URI = URI{Path: uriPrefix + dir}
	} else {
		fp.URI = URI{Path: uriPrefix + dir, Basename: base}
	}
	return fp, nil
}

// ParseMount parses one mount parameter: a directory tree made visible to
// the container read-only.
func (p *Parser) ParseMount(name, raw string) (FileParam, error) {
	name, err := p.resolveName(KindMount, name)
	if err != nil {
		return FileParam{}, err
	}
	return parseDirectory(KindMount, name, raw)
}
