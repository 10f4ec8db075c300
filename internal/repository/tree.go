package repository

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// SplitPath splits a slash separated document path into its segments
func SplitPath(path string) []string {
	var segs []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

// related reports whether a change at one path can alter the value observed
// at the other, i.e. one is an ancestor of (or equal to) the other.
func related(a, b []string) bool {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// normalize round-trips a value through JSON so the tree only ever holds
// map[string]any, []any, string, float64, bool and nil.
func normalize(value any) (any, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to encode value: %w", err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode value: %w", err)
	}
	return out, nil
}

func lookup(node any, segs []string) (any, bool) {
	for _, seg := range segs {
		switch n := node.(type) {
		case map[string]any:
			child, ok := n[seg]
			if !ok {
				return nil, false
			}
			node = child
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(n) {
				return nil, false
			}
			node = n[i]
		default:
			return nil, false
		}
	}
	if node == nil {
		return nil, false
	}
	return node, true
}

// assign returns node with value written at segs. Missing or non-container
// intermediates are replaced with objects; a nil value removes the key.
func assign(node any, segs []string, value any) any {
	if len(segs) == 0 {
		return value
	}

	seg, rest := segs[0], segs[1:]

	if list, ok := node.([]any); ok {
		if i, err := strconv.Atoi(seg); err == nil && i >= 0 && i < len(list) {
			out := make([]any, len(list))
			copy(out, list)
			out[i] = assign(list[i], rest, value)
			return out
		}
	}

	src, _ := node.(map[string]any)
	out := make(map[string]any, len(src)+1)
	for k, v := range src {
		out[k] = v
	}

	child := assign(src[seg], rest, value)
	if child == nil {
		delete(out, seg)
	} else {
		out[seg] = child
	}

	if len(out) == 0 {
		return nil
	}
	return out
}
