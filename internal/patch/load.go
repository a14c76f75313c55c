package patch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"
)

// Load error codes, shared with the CLI.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // Read or CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE evaluation failed
	ErrCodeWriteFailed = "E007" // File write error
	ErrCodeFormat      = "E008" // Unsupported file format
	ErrCodeDecode      = "E009" // Document does not match the patch schema
)

// LoadError is a failure to read a patch file.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Format is a serialisation of a Document.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatCUE  Format = "cue"
)

// FormatOf infers the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	case ".cue":
		return FormatCUE, nil
	}
	return "", &LoadError{Code: ErrCodeFormat, Message: fmt.Sprintf("cannot tell patch format of %s (want .yaml, .yml, .json or .cue)", path)}
}

// LoadFile reads one patch. A CUE source declaring several patches is
// rejected; use LoadCUE to read them all.
func LoadFile(path string) (*Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("patch not found: %s", path)}
	}

	format := FormatCUE
	if !info.IsDir() {
		if format, err = FormatOf(path); err != nil {
			return nil, err
		}
	}
	if format == FormatCUE {
		docs, err := LoadCUE(path)
		if err != nil {
			return nil, err
		}
		if len(docs) > 1 {
			names := make([]string, len(docs))
			for i, d := range docs {
				names[i] = d.Name
			}
			return nil, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("%s declares %d patches (%s)", path, len(docs), strings.Join(names, ", "))}
		}
		return docs[0], nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: err.Error()}
	}
	defer f.Close()

	doc, err := Decode(f, format)
	if err != nil {
		return nil, err
	}
	if doc.Name == "" {
		doc.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return doc, nil
}

// Decode reads a YAML or JSON Document. Unknown fields are rejected.
func Decode(r io.Reader, format Format) (*Document, error) {
	var doc Document
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&doc); err != nil {
			return nil, &LoadError{Code: ErrCodeDecode, Message: fmt.Sprintf("parse YAML: %v", err)}
		}
	case FormatJSON:
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&doc); err != nil {
			return nil, &LoadError{Code: ErrCodeDecode, Message: fmt.Sprintf("parse JSON: %v", err)}
		}
	default:
		return nil, &LoadError{Code: ErrCodeFormat, Message: fmt.Sprintf("cannot decode %q patches", format)}
	}
	if doc.Nodes == nil {
		doc.Nodes = []NodeSpec{}
	}
	if doc.Connections == nil {
		doc.Connections = []ConnectionSpec{}
	}
	return &doc, nil
}

// Encode writes doc as YAML or JSON.
func Encode(w io.Writer, doc *Document, format Format) error {
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	}
	return &LoadError{Code: ErrCodeFormat, Message: fmt.Sprintf("cannot encode %q patches", format)}
}

// WriteFile saves doc in the format implied by the path's extension.
func WriteFile(path string, doc *Document) error {
	format, err := FormatOf(path)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := Encode(&buf, doc, format); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return &LoadError{Code: ErrCodeWriteFailed, Message: err.Error()}
	}
	return nil
}
