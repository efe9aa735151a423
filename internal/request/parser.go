// Package request parses module request strings of the form
// `loaderA!loaderB!./src/entry.js`: a `!`-delimited loader chain followed by
// the resource the chain applies to. Each loader element may carry a
// `?query` suffix which is preserved verbatim.
package request

import (
	"fmt"
	"strings"
)

// Parse creates a Chain by parsing the canonical string representation of a
// module request. The final segment is always the resource; every preceding
// segment is a loader reference.
func Parse(raw string) (*Chain, error) {
	if raw == "" {
		return nil, fmt.Errorf("request cannot be empty")
	}

	segments := strings.Split(raw, "!")
	chain := &Chain{}

	for i, segment := range segments {
		if segment == "" {
			return nil, fmt.Errorf("request %q contains empty segment", raw)
		}

		if i == len(segments)-1 {
			chain.Resource = segment
			continue
		}

		element := NewElement(segment)
		if idx := strings.Index(segment, "?"); idx >= 0 {
			if idx == 0 {
				return nil, fmt.Errorf("loader segment %q has no name before query", segment)
			}
			element.Loader = segment[:idx]
			element.Query = segment[idx:]
		}
		chain.Elements = append(chain.Elements, element)
	}

	return chain, nil
}
