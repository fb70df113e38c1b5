// Package media finds object-storage references inside item payloads and
// removes the referenced objects when an item is purged.
package media

import (
	"encoding/json"
	"net/url"
	"sort"
	"strings"
)

// attribute names that carry a media location in editor documents and
// attachment lists
var referenceKeys = map[string]struct{}{
	"src":        {},
	"url":        {},
	"href":       {},
	"key":        {},
	"storageKey": {},
	"poster":     {},
}

// Resolver maps a location found in content to an object key in one bucket.
type Resolver struct {
	Bucket        string
	PublicBaseURL string
}

// References walks the JSON payload and returns the sorted, de-duplicated
// object keys it points at. Locations outside the bucket are ignored, as is
// content that is not valid JSON.
func (r Resolver) References(content json.RawMessage) []string {
	if len(content) == 0 {
		return nil
	}
	var doc any
	if err := json.Unmarshal(content, &doc); err != nil {
		return nil
	}

	found := map[string]struct{}{}
	r.walk(doc, found)
	if len(found) == 0 {
		return nil
	}
	keys := make([]string, 0, len(found))
	for key := range found {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (r Resolver) walk(node any, found map[string]struct{}) {
	switch value := node.(type) {
	case map[string]any:
		for name, child := range value {
			if text, ok := child.(string); ok {
				if _, wanted := referenceKeys[name]; wanted {
					if key, ok := r.objectKey(text); ok {
						found[key] = struct{}{}
					}
				}
				continue
			}
			r.walk(child, found)
		}
	case []any:
		for _, child := range value {
			r.walk(child, found)
		}
	}
}

func (r Resolver) objectKey(location string) (string, bool) {
	location = strings.TrimSpace(location)
	if location == "" {
		return "", false
	}

	if r.Bucket != "" {
		prefix := "s3://" + r.Bucket + "/"
		if strings.HasPrefix(location, prefix) {
			return cleanKey(strings.TrimPrefix(location, prefix))
		}
	}

	base := strings.TrimRight(r.PublicBaseURL, "/")
	if base != "" && strings.HasPrefix(location, base+"/") {
		rest := strings.TrimPrefix(location, base+"/")
		if parsed, err := url.Parse(rest); err == nil {
			rest = parsed.Path
		}
		return cleanKey(rest)
	}
	return "", false
}

func cleanKey(key string) (string, bool) {
	key = strings.TrimLeft(key, "/")
	if key == "" || strings.Contains(key, "..") {
		return "", false
	}
	return key, true
}
