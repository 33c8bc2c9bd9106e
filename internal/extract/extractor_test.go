package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFastPathShapes(t *testing.T) {
	textDescriptor := Descriptor{Path: "text", ValueType: ValueTypeText}

	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{
			name:    "result field",
			payload: `{"result": "a caption"}`,
			want:    "a caption",
		},
		{
			name:    "result field trims whitespace",
			payload: `{"result": "  padded caption \n"}`,
			want:    "padded caption",
		},
		{
			name:    "result array of strings",
			payload: `{"result": ["first caption", "second caption"]}`,
			want:    "first caption",
		},
		{
			name:    "array first element nested data.text",
			payload: `[{"data": {"text": "nested caption"}}]`,
			want:    "nested caption",
		},
		{
			name:    "array first element text",
			payload: `[{"text": "element caption"}]`,
			want:    "element caption",
		},
		{
			name:    "direct text field",
			payload: `{"text": "direct caption"}`,
			want:    "direct caption",
		},
		{
			name:    "alternate top-level location",
			payload: `{"output": "alternate caption"}`,
			want:    "alternate caption",
		},
		{
			name:    "array with text objects under result",
			payload: `{"result": [{"text": "object caption"}]}`,
			want:    "object caption",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Value([]byte(tc.payload), textDescriptor)
			assert.True(t, ok, "expected a value from %s", tc.payload)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestGenericPathResolution(t *testing.T) {
	tests := []struct {
		name       string
		payload    string
		descriptor Descriptor
		want       string
	}{
		{
			name:       "url under outputs.data",
			payload:    `{"outputs":{"data":{"value":"http://x/y.png"}}}`,
			descriptor: Descriptor{Path: "data.value", ValueType: ValueTypeURL},
			want:       "http://x/y.png",
		},
		{
			name:       "path against payload itself",
			payload:    `{"data":{"image_url":"http://img/a.png"}}`,
			descriptor: Descriptor{Path: "data.image_url", ValueType: ValueTypeURL},
			want:       "http://img/a.png",
		},
		{
			name:       "path under response list element",
			payload:    `{"response":[{"data":{"image_url":"http://img/b.png"}}]}`,
			descriptor: Descriptor{Path: "data.image_url", ValueType: ValueTypeURL},
			want:       "http://img/b.png",
		},
		{
			name:       "path under result field",
			payload:    `{"result":{"caption":"from result"}}`,
			descriptor: Descriptor{Path: "caption", ValueType: ValueTypeText},
			want:       "from result",
		},
		{
			name:       "bracket indexing",
			payload:    `{"data":{"items":[{"value":"indexed"}]}}`,
			descriptor: Descriptor{Path: "data.items[0].value", ValueType: ValueTypeText},
			want:       "indexed",
		},
		{
			name:       "url array takes first string",
			payload:    `{"outputs":{"urls":["http://img/1.png","http://img/2.png"]}}`,
			descriptor: Descriptor{Path: "urls", ValueType: ValueTypeURL},
			want:       "http://img/1.png",
		},
		{
			name:       "text descriptor with non-text path uses generic resolver",
			payload:    `{"outputs":{"summary":"generic text"}}`,
			descriptor: Descriptor{Path: "summary", ValueType: ValueTypeText},
			want:       "generic text",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Value([]byte(tc.payload), tc.descriptor)
			assert.True(t, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNoValue(t *testing.T) {
	tests := []struct {
		name       string
		payload    string
		descriptor Descriptor
	}{
		{
			name:       "empty payload",
			payload:    ``,
			descriptor: Descriptor{Path: "text", ValueType: ValueTypeText},
		},
		{
			name:       "empty object",
			payload:    `{}`,
			descriptor: Descriptor{Path: "text", ValueType: ValueTypeText},
		},
		{
			name:       "path resolves to null",
			payload:    `{"outputs":{"value":null}}`,
			descriptor: Descriptor{Path: "value", ValueType: ValueTypeText},
		},
		{
			name:       "url descriptor over numeric value",
			payload:    `{"outputs":{"value":42}}`,
			descriptor: Descriptor{Path: "value", ValueType: ValueTypeURL},
		},
		{
			name:       "empty string is no value",
			payload:    `{"result":"   "}`,
			descriptor: Descriptor{Path: "text", ValueType: ValueTypeText},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Value([]byte(tc.payload), tc.descriptor)
			assert.False(t, ok, "expected no value, got %q", got)
			assert.Empty(t, got)
		})
	}
}
