// Package config loads a gendas.Engine from a declarative, section-per-source
// configuration file (spec.md §6 "Configuration file"). Each top-level key
// names a source label; its body selects a backing file format and
// describes the schema.
package config

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/jordeu/gendas"
	"github.com/jordeu/gendas/source"
)

// section is the decoded shape of one source's config block.
type section struct {
	Type     string   `mapstructure:"type"`
	File     string   `mapstructure:"file"`
	Header   []string `mapstructure:"header"`
	Ctypes   []string `mapstructure:"ctypes"`
	Sequence string   `mapstructure:"sequence"`
	Begin    string   `mapstructure:"begin"`
	End      string   `mapstructure:"end"`
	Indices  []string `mapstructure:"indices"`
}

// ctypeParsers maps a config file's column-type names to a gendas.Parser.
var ctypeParsers = map[string]gendas.Parser{
	"string":  gendas.ParseString,
	"str":     gendas.ParseString,
	"int":     gendas.ParseInt64,
	"integer": gendas.ParseInt64,
	"float":   gendas.ParseFloat64,
	"double":  gendas.ParseFloat64,
}

// Load reads path and builds an Engine with every section registered as a
// source (spec.md §6). Relative `file` paths are resolved against path's
// directory. Unknown `type` values are a ConfigError, fatal at engine init
// (spec.md §7).
func Load(path string, opts gendas.Options) (*gendas.Engine, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, gendas.E(gendas.ConfigError, fmt.Sprintf("reading config %q:", path), err)
	}

	engine := gendas.New(opts)
	dir := filepath.Dir(path)

	for label := range v.AllSettings() {
		var sec section
		if err := v.UnmarshalKey(label, &sec); err != nil {
			return nil, gendas.E(gendas.ConfigError, fmt.Sprintf("section %q:", label), err)
		}
		src, err := buildSource(label, dir, sec)
		if err != nil {
			return nil, err
		}
		if err := engine.Register(src); err != nil {
			return nil, err
		}
	}
	return engine, nil
}

func buildSource(label, dir string, sec section) (gendas.Source, error) {
	schema, err := buildSchema(label, sec)
	if err != nil {
		return nil, err
	}

	path := sec.File
	if path != "" && !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}

	switch sec.Type {
	case "tabix":
		return source.OpenTabixSource(label, path, schema, sec.Indices), nil
	case "mem":
		return source.OpenIntervalTreeSource(label, path, schema, sec.Indices)
	default:
		return nil, gendas.E(gendas.ConfigError, fmt.Sprintf("section %q: unknown source type %q", label, sec.Type))
	}
}

func buildSchema(label string, sec section) (*gendas.Schema, error) {
	if len(sec.Header) != len(sec.Ctypes) {
		return nil, gendas.E(gendas.ConfigError, fmt.Sprintf("section %q: %d header columns but %d ctypes", label, len(sec.Header), len(sec.Ctypes)))
	}
	parsers := make([]gendas.Parser, len(sec.Ctypes))
	for i, name := range sec.Ctypes {
		p, ok := ctypeParsers[name]
		if !ok {
			return nil, gendas.E(gendas.ConfigError, fmt.Sprintf("section %q: unknown ctype %q", label, name))
		}
		parsers[i] = p
	}
	return gendas.NewSchema(sec.Header, parsers, sec.Sequence, sec.Begin, sec.End)
}
