// Package extract pulls typed values out of heterogeneous execution-result
// payloads. Capability providers return results in inconsistent shapes, so
// extraction is layered: a fast path for the shapes text-producing
// capabilities commonly return, then generic path resolution against an
// ordered list of candidate roots. Finding nothing is not an error here;
// callers decide whether "no value" means retry.
package extract

import (
	"strings"

	"github.com/tidwall/gjson"
)

// ValueType selects how a resolved value is coerced to a string.
type ValueType string

// Supported value types
const (
	ValueTypeText ValueType = "text"
	ValueTypeURL  ValueType = "url"
)

// Descriptor is the declarative extraction rule attached to a capability:
// a dot/bracket-indexed path (e.g. "data.items.0.value") and the type of
// value expected at it.
type Descriptor struct {
	Path      string    `json:"path"`
	ValueType ValueType `json:"value_type"`
}

// fastPathCandidates are the payload locations tried, in order, for
// text-producing capabilities. Providers variously return {"result": ...},
// a list of chunks with nested data, or a bare text field under one of a
// few names.
var fastPathCandidates = []string{
	"result",
	"0.data.text",
	"0.text",
	"text",
	"output",
	"message",
}

// rootCandidates are the payload locations a descriptor path is resolved
// against, in priority order. The empty root is the payload itself.
var rootCandidates = []string{
	"",
	"outputs",
	"outputs.data",
	"response",
	"response.0",
	"response.0.data",
	"result",
}

// Value resolves the descriptor against a JSON payload and returns the
// extracted string. The boolean is false when nothing resolved; that is the
// "no value" outcome, not an error.
func Value(payload []byte, d Descriptor) (string, bool) {
	if len(payload) == 0 {
		return "", false
	}

	if d.Path == "text" && d.ValueType == ValueTypeText {
		if v, ok := fastPath(payload); ok {
			return v, ok
		}
	}

	return genericPath(payload, d)
}

// fastPath tries the known text shapes and returns the first non-empty hit.
func fastPath(payload []byte) (string, bool) {
	for _, path := range fastPathCandidates {
		if s := firstString(gjson.GetBytes(payload, path)); s != "" {
			return s, true
		}
	}
	return "", false
}

// genericPath resolves the descriptor path against each candidate root and
// coerces the first non-null hit per the descriptor's value type.
func genericPath(payload []byte, d Descriptor) (string, bool) {
	if d.Path == "" {
		return "", false
	}

	basePath := normalizePath(d.Path)

	for _, root := range rootCandidates {
		path := basePath
		if root != "" {
			path = root + "." + basePath
		}

		result := gjson.GetBytes(payload, path)
		if !result.Exists() || result.Type == gjson.Null {
			continue
		}

		var value string
		switch d.ValueType {
		case ValueTypeURL:
			value = urlValue(result)
		default:
			value = firstString(result)
		}

		if value != "" {
			return value, true
		}
	}

	return "", false
}

// normalizePath rewrites bracket indexing ("items[0].value") into gjson's
// dot form ("items.0.value").
func normalizePath(path string) string {
	replacer := strings.NewReplacer("[", ".", "]", "")
	return replacer.Replace(path)
}

// firstString coerces a resolved value to a trimmed string: a plain string is
// trimmed and returned; an array yields its first string element or, failing
// that, the first element's "text" attribute.
func firstString(result gjson.Result) string {
	switch {
	case result.Type == gjson.String:
		return strings.TrimSpace(result.String())
	case result.IsArray():
		elems := result.Array()
		if len(elems) == 0 {
			return ""
		}
		for _, elem := range elems {
			if elem.Type == gjson.String {
				return strings.TrimSpace(elem.String())
			}
		}
		if text := elems[0].Get("text"); text.Type == gjson.String {
			return strings.TrimSpace(text.String())
		}
	}
	return ""
}

// urlValue returns a string value as-is, or the first string element of an
// array. URLs are not trimmed or rewritten.
func urlValue(result gjson.Result) string {
	switch {
	case result.Type == gjson.String:
		return result.String()
	case result.IsArray():
		for _, elem := range result.Array() {
			if elem.Type == gjson.String {
				return elem.String()
			}
		}
	}
	return ""
}
