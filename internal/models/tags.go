package models

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Tags decode from either a list or a comma separated string, since
// platform exports disagree on the shape.
type Tags []string

// ParseTags splits, trims and de-duplicates (case-insensitively) a
// comma separated tag string.
func ParseTags(s string) Tags {
	return NormalizeTags(strings.Split(s, ","))
}

// NormalizeTags trims, drops empties and de-duplicates while keeping the
// first spelling of each tag.
func NormalizeTags(in []string) Tags {
	out := make(Tags, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, t := range in {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		k := strings.ToLower(t)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, t)
	}
	return out
}

func (t *Tags) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	switch {
	case s == "null":
		*t = nil
		return nil
	case strings.HasPrefix(s, `"`):
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*t = ParseTags(str)
		return nil
	case strings.HasPrefix(s, "["):
		var list []string
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*t = NormalizeTags(list)
		return nil
	}
	return fmt.Errorf("tags: expected string or array, got %s", s)
}

func (t *Tags) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*t = ParseTags(value.Value)
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		*t = NormalizeTags(list)
		return nil
	}
	return fmt.Errorf("tags: expected string or list at line %d", value.Line)
}
