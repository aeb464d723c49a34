package testutils

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// recordingT captures Errorf calls so asserter failures can be inspected.
type recordingT struct {
	errors []string
}

func (r *recordingT) Errorf(format string, args ...interface{}) {
	r.errors = append(r.errors, fmt.Sprintf(format, args...))
}

func TestJSONAsserter_DefaultOptions(t *testing.T) {
	opts := NewJSONAsserter(t).GetOptions()

	assert.True(t, opts.IgnoreExtraKeys)
	assert.True(t, opts.AllowPresencePlaceholder)
	assert.False(t, opts.IgnoreArrayOrder)
	assert.Empty(t, opts.IgnoredFields)
}

func TestJSONAsserter_Diff(t *testing.T) {
	tests := []struct {
		name     string
		opts     []Option
		actual   string
		expected string
		wantDiff bool
	}{
		{
			name:     "identical objects",
			actual:   `{"epc":"A","seen_count":1}`,
			expected: `{"epc":"A","seen_count":1}`,
		},
		{
			name:     "extra keys ignored by default",
			actual:   `{"epc":"A","seen_count":1,"rssi":-50}`,
			expected: `{"epc":"A"}`,
		},
		{
			name:     "extra keys reported when not ignored",
			opts:     []Option{WithIgnoreExtraKeys(false)},
			actual:   `{"epc":"A","rssi":-50}`,
			expected: `{"epc":"A"}`,
			wantDiff: true,
		},
		{
			name:     "presence placeholder matches any value",
			actual:   `{"epc":"A","last_seen":"2024-05-01T12:00:00Z"}`,
			expected: `{"epc":"A","last_seen":"<<PRESENCE>>"}`,
		},
		{
			name:     "presence placeholder requires the key",
			actual:   `{"epc":"A"}`,
			expected: `{"epc":"A","last_seen":"<<PRESENCE>>"}`,
			wantDiff: true,
		},
		{
			name:     "presence placeholder disabled",
			opts:     []Option{WithAllowPresencePlaceholder(false)},
			actual:   `{"epc":"A","last_seen":"2024-05-01T12:00:00Z"}`,
			expected: `{"epc":"A","last_seen":"<<PRESENCE>>"}`,
			wantDiff: true,
		},
		{
			name:     "root arrays compared element-wise",
			actual:   `[{"epc":"A"},{"epc":"B"}]`,
			expected: `[{"epc":"A"},{"epc":"C"}]`,
			wantDiff: true,
		},
		{
			name:     "array order ignored",
			opts:     []Option{WithIgnoreArrayOrder(true)},
			actual:   `[{"epc":"B"},{"epc":"A"}]`,
			expected: `[{"epc":"A"},{"epc":"B"}]`,
		},
		{
			name:     "ignored fields at any depth",
			opts:     []Option{WithIgnoredFields("first_seen", "last_seen"), WithIgnoreExtraKeys(false)},
			actual:   `{"records":[{"epc":"A","first_seen":"x","last_seen":"y"}]}`,
			expected: `{"records":[{"epc":"A","first_seen":"1","last_seen":"2"}]}`,
		},
		{
			name:     "invalid actual JSON",
			actual:   `{`,
			expected: `{}`,
			wantDiff: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recordingT{}
			NewJSONAsserter(rec).WithOptions(tt.opts...).Assert(tt.actual, tt.expected)
			if tt.wantDiff {
				assert.Len(t, rec.errors, 1, "asserter MUST report a difference")
			} else {
				assert.Empty(t, rec.errors, "asserter MUST NOT report a difference")
			}
		})
	}
}

func TestMustJSON_PanicsOnUnsupportedValue(t *testing.T) {
	assert.Panics(t, func() { MustJSON(make(chan int)) })
	assert.Equal(t, `{"a":1}`, MustJSON(map[string]int{"a": 1}))
}
