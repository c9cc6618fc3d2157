package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"schemaregistry/pkg/jsonvalue"
)

// schemaFile is a schema read from disk, normalized to JSON text.
type schemaFile struct {
	Path  string
	Title string
	Text  string
}

// readSchemaFile accepts .json, .yaml and .yml files. The definition title is
// the schema's title, or the file name without extension when it has none.
func readSchemaFile(path string) (schemaFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return schemaFile{}, err
	}

	var doc jsonvalue.Value
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		doc, err = jsonvalue.FromYAML(data)
	default:
		doc, err = jsonvalue.Parse(data)
	}
	if err != nil {
		return schemaFile{}, fmt.Errorf("%s: %w", path, err)
	}

	title, ok := doc.GetString("title")
	if !ok || strings.TrimSpace(title) == "" {
		title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return schemaFile{Path: path, Title: title, Text: doc.String()}, nil
}
