// Package index reads and writes update site indexes: gzip-compressed YAML
// documents listing every file a site publishes.
package index

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"updater/internal/updater"
)

type document struct {
	Timestamp int64  `yaml:"timestamp"`
	Files     []file `yaml:"files"`
}

type file struct {
	Filename     string       `yaml:"filename"`
	Description  string       `yaml:"description,omitempty"`
	Platforms    []string     `yaml:"platforms,omitempty"`
	Current      *version     `yaml:"current,omitempty"`
	Previous     []version    `yaml:"previous,omitempty"`
	Dependencies []dependency `yaml:"dependencies,omitempty"`
}

type version struct {
	Checksum  string `yaml:"checksum"`
	Timestamp int64  `yaml:"timestamp"`
}

type dependency struct {
	Filename  string `yaml:"filename"`
	Timestamp int64  `yaml:"timestamp,omitempty"`
	Overrides bool   `yaml:"overrides,omitempty"`
}

// Codec implements updater.IndexCodec. It writes gzip-compressed YAML and
// reads both compressed and plain YAML.
type Codec struct{}

func NewCodec() *Codec {
	return &Codec{}
}

// Decode parses an index and validates that every file is named once.
func (c *Codec) Decode(r io.Reader) (*updater.RemoteIndex, error) {
	br := bufio.NewReader(r)
	var src io.Reader = br
	if magic, err := br.Peek(2); err == nil && bytes.Equal(magic, []byte{0x1f, 0x8b}) {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("opening gzip stream: %w", err)
		}
		defer zr.Close()
		src = zr
	}

	var doc document
	if err := yaml.NewDecoder(src).Decode(&doc); err != nil {
		if err == io.EOF {
			return &updater.RemoteIndex{}, nil
		}
		return nil, fmt.Errorf("decoding index: %w", err)
	}

	index := &updater.RemoteIndex{Timestamp: doc.Timestamp}
	seen := make(map[string]bool, len(doc.Files))
	for i, f := range doc.Files {
		if f.Filename == "" {
			return nil, fmt.Errorf("index entry %d has no filename", i)
		}
		if seen[f.Filename] {
			return nil, fmt.Errorf("index lists %s more than once", f.Filename)
		}
		seen[f.Filename] = true
		index.Files = append(index.Files, toFact(f))
	}
	return index, nil
}

// Encode writes index as gzip-compressed YAML.
func (c *Codec) Encode(w io.Writer, index *updater.RemoteIndex) error {
	doc := document{Timestamp: index.Timestamp}
	for _, fact := range index.Files {
		doc.Files = append(doc.Files, fromFact(fact))
	}

	zw := gzip.NewWriter(w)
	enc := yaml.NewEncoder(zw)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("encoding index: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encoding index: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("compressing index: %w", err)
	}
	return nil
}

func toFact(f file) updater.RemoteFact {
	fact := updater.RemoteFact{
		Filename:    f.Filename,
		Description: f.Description,
		Platforms:   f.Platforms,
	}
	if f.Current != nil {
		fact.Current = &updater.Version{Checksum: f.Current.Checksum, Timestamp: f.Current.Timestamp}
	}
	for _, v := range f.Previous {
		fact.Previous = append(fact.Previous, updater.Version{Checksum: v.Checksum, Timestamp: v.Timestamp})
	}
	for _, d := range f.Dependencies {
		fact.Dependencies = append(fact.Dependencies, updater.Dependency{Filename: d.Filename, Timestamp: d.Timestamp, Overrides: d.Overrides})
	}
	return fact
}

func fromFact(fact updater.RemoteFact) file {
	f := file{
		Filename:    fact.Filename,
		Description: fact.Description,
		Platforms:   fact.Platforms,
	}
	if fact.Current != nil {
		f.Current = &version{Checksum: fact.Current.Checksum, Timestamp: fact.Current.Timestamp}
	}
	for _, v := range fact.Previous {
		f.Previous = append(f.Previous, version{Checksum: v.Checksum, Timestamp: v.Timestamp})
	}
	for _, d := range fact.Dependencies {
		f.Dependencies = append(f.Dependencies, dependency{Filename: d.Filename, Timestamp: d.Timestamp, Overrides: d.Overrides})
	}
	return f
}

var _ updater.IndexCodec = (*Codec)(nil)
