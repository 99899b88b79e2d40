package collect

import "regexp"

var threadIDPattern = regexp.MustCompile(`t=(\d+)`)

// ExtractThreadID returns the numeric forum thread id from a `t=<digits>`
// query parameter, or the link itself when there is none.
func ExtractThreadID(link string) string {
	if m := threadIDPattern.FindStringSubmatch(link); m != nil {
		return m[1]
	}
	return link
}
