package format

import (
	"cmp"
	"mime"
	"slices"
	"strconv"
	"strings"
)

type mediaRange struct {
	mediaType string
	quality   float64
}

func parseAccept(accept string) []mediaRange {
	var ranges []mediaRange
	for part := range strings.SplitSeq(accept, ",") {
		mediaType, params, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		quality := 1.0
		if q, ok := params["q"]; ok {
			if v, err := strconv.ParseFloat(q, 64); err == nil {
				quality = v
			}
		}
		if quality <= 0 {
			continue
		}
		ranges = append(ranges, mediaRange{mediaType: mediaType, quality: quality})
	}
	slices.SortStableFunc(ranges, func(a, b mediaRange) int {
		return cmp.Compare(b.quality, a.quality)
	})
	return ranges
}

// SelectOutput picks the formatter for the given Accept header. Media
// ranges are tried by decreasing quality. A wildcard, an empty header or
// no match selects the first formatter. formatters must not be empty.
func SelectOutput(formatters []OutputFormatter, accept string) OutputFormatter {
	for _, r := range parseAccept(accept) {
		if r.mediaType == "*/*" {
			break
		}
		for _, f := range formatters {
			if f.CanWrite(r.mediaType) {
				return f
			}
		}
	}
	return formatters[0]
}
