package clix

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"skald/internal/models"
)

type productFile struct {
	Products []models.ProductDraft `json:"products" yaml:"products"`
}

// ReadProductFile loads drafts from a .json, .yaml or .yml file. The file
// holds either a bare list or an object with a "products" list.
func ReadProductFile(path string) ([]models.ProductDraft, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return decodeJSONProducts(data)
	case ".yaml", ".yml":
		return decodeYAMLProducts(data)
	default:
		return nil, fmt.Errorf("unsupported product file type %q (want .json, .yaml or .yml)", filepath.Ext(path))
	}
}

func decodeJSONProducts(data []byte) ([]models.ProductDraft, error) {
	trimmed := bytes.TrimSpace(data)
	if bytes.HasPrefix(trimmed, []byte("[")) {
		var drafts []models.ProductDraft
		if err := json.Unmarshal(trimmed, &drafts); err != nil {
			return nil, fmt.Errorf("invalid product list: %w", err)
		}
		return drafts, nil
	}
	var f productFile
	if err := json.Unmarshal(trimmed, &f); err != nil {
		return nil, fmt.Errorf("invalid product file: %w", err)
	}
	return f.Products, nil
}

func decodeYAMLProducts(data []byte) ([]models.ProductDraft, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("invalid product file: %w", err)
	}
	if len(root.Content) == 0 {
		return nil, nil
	}
	doc := root.Content[0]
	if doc.Kind == yaml.SequenceNode {
		var drafts []models.ProductDraft
		if err := doc.Decode(&drafts); err != nil {
			return nil, fmt.Errorf("invalid product list: %w", err)
		}
		return drafts, nil
	}
	var f productFile
	if err := doc.Decode(&f); err != nil {
		return nil, fmt.Errorf("invalid product file: %w", err)
	}
	return f.Products, nil
}
