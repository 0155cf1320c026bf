package extractor

// contentSelectors are tried in order after the semantic containers fail.
// They cover the documentation and blog generators seen most often.
//
//nolint:gochecknoglobals // static lookup table
var contentSelectors = []string{
	".content",
	".doc-content",
	".markdown-body",
	"#docs-content",
	".rst-content",
	".theme-doc-markdown",
	".md-content",
	".docMainContainer",
	".document",
	".md-main__inner",
	".book-body",
	".markdown-section",
	".theme-default-content",
	".post-content",
	".article-content",
	".entry-content",
	"#content",
	"#main",
}

// mergeSelectors appends custom to defaults, keeping the first occurrence of each.
func mergeSelectors(defaults, custom []string) []string {
	seen := make(map[string]bool, len(defaults)+len(custom))
	merged := make([]string, 0, len(defaults)+len(custom))
	for _, list := range [][]string{defaults, custom} {
		for _, selector := range list {
			if !seen[selector] {
				seen[selector] = true
				merged = append(merged, selector)
			}
		}
	}
	return merged
}
