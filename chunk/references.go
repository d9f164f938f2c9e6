package chunk

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/IvanBrykalov/rangecache/internal/util"
)

type referenceDoc struct {
	Version   int                        `json:"version"`
	Templates map[string]string          `json:"templates"`
	Refs      map[string]json.RawMessage `json:"refs"`
}

// LoadReferences parses a kerchunk-style reference document. Both the
// version 1 layout ({"version":1,"templates":{...},"refs":{...}}) and the
// bare version 0 mapping are accepted. Each reference is one of
//
//	["<url>", offset, length]   byte range of a backing object
//	["<url>"]                   the whole backing object
//	"base64:<data>"             inline binary chunk
//	"<text>"                    inline text chunk or metadata document
//
// and "{{name}}" placeholders in urls are expanded from templates. Keys
// whose last path element starts with '.' (".zarray", ".zattrs", ...) are
// kept as metadata; all other keys are "<array>/<i>.<j>..." chunk keys.
//
// id identifies the index in cache keys; when empty a digest of the
// document is used.
func LoadReferences(id string, r io.Reader) (*Index, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("chunk: read references: %w", err)
	}
	if id == "" {
		id = util.Digest(raw)
	}

	doc, err := decodeReferences(raw)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(doc.Refs))
	meta := make(map[string][]byte)
	for k, v := range doc.Refs {
		if isMetadataKey(k) {
			b, err := inlineValue(k, v)
			if err != nil {
				return nil, err
			}
			meta[k] = b
			continue
		}
		array, coord, err := splitChunkKey(k)
		if err != nil {
			return nil, err
		}
		ref, err := parseRef(k, v, doc.Templates)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Array: array, Coord: coord, Ref: ref})
	}

	ix, err := NewIndex(id, entries)
	if err != nil {
		return nil, err
	}
	ix.meta = meta
	return ix, nil
}

func decodeReferences(raw []byte) (referenceDoc, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return referenceDoc{}, fmt.Errorf("chunk: decode references: %w", err)
	}
	if _, v1 := probe["refs"]; !v1 {
		return referenceDoc{Refs: probe}, nil
	}
	var doc referenceDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return referenceDoc{}, fmt.Errorf("chunk: decode references: %w", err)
	}
	if doc.Version != 1 {
		return referenceDoc{}, fmt.Errorf("chunk: unsupported reference version %d", doc.Version)
	}
	return doc, nil
}

func isMetadataKey(k string) bool {
	last := k
	if i := strings.LastIndexByte(k, '/'); i >= 0 {
		last = k[i+1:]
	}
	return strings.HasPrefix(last, ".")
}

func splitChunkKey(k string) (string, Coord, error) {
	array, c := "", k
	if i := strings.LastIndexByte(k, '/'); i >= 0 {
		array, c = k[:i], k[i+1:]
	}
	coord, err := ParseCoord(c)
	if err != nil {
		return "", nil, fmt.Errorf("chunk: key %q: %w", k, err)
	}
	return array, coord, nil
}

func parseRef(k string, v json.RawMessage, templates map[string]string) (Ref, error) {
	v = bytes.TrimSpace(v)
	if len(v) > 0 && v[0] == '"' {
		b, err := inlineValue(k, v)
		if err != nil {
			return Ref{}, err
		}
		return Ref{Inline: b, Length: int64(len(b))}, nil
	}

	var parts []json.RawMessage
	if err := json.Unmarshal(v, &parts); err != nil {
		return Ref{}, fmt.Errorf("chunk: key %q: invalid reference: %w", k, err)
	}
	switch len(parts) {
	case 1:
		var url string
		if err := json.Unmarshal(parts[0], &url); err != nil {
			return Ref{}, fmt.Errorf("chunk: key %q: invalid url: %w", k, err)
		}
		return Ref{Source: expand(url, templates), Whole: true}, nil
	case 3:
	default:
		return Ref{}, fmt.Errorf("chunk: key %q: reference must be [url] or [url, offset, length]", k)
	}

	var (
		url    string
		off, n int64
	)
	if err := json.Unmarshal(parts[0], &url); err != nil {
		return Ref{}, fmt.Errorf("chunk: key %q: invalid url: %w", k, err)
	}
	if err := json.Unmarshal(parts[1], &off); err != nil {
		return Ref{}, fmt.Errorf("chunk: key %q: invalid offset: %w", k, err)
	}
	if err := json.Unmarshal(parts[2], &n); err != nil {
		return Ref{}, fmt.Errorf("chunk: key %q: invalid length: %w", k, err)
	}
	return Ref{Source: expand(url, templates), Offset: off, Length: n}, nil
}

func inlineValue(k string, v json.RawMessage) ([]byte, error) {
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return nil, fmt.Errorf("chunk: key %q: expected string: %w", k, err)
	}
	if enc, ok := strings.CutPrefix(s, "base64:"); ok {
		b, err := base64.StdEncoding.DecodeString(enc)
		if err != nil {
			return nil, fmt.Errorf("chunk: key %q: %w", k, err)
		}
		return b, nil
	}
	return []byte(s), nil
}

func expand(url string, templates map[string]string) string {
	if len(templates) == 0 || !strings.Contains(url, "{{") {
		return url
	}
	for name, val := range templates {
		url = strings.ReplaceAll(url, "{{"+name+"}}", val)
	}
	return url
}
