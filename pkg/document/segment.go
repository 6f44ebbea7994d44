// Package document splits a markdown requirements document into titled
// sections and packs those sections into size-bounded batches.
package document

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

const (
	// FrontMatterTitle names the section holding text that precedes the first heading.
	FrontMatterTitle = "front matter"
	// UntitledTitle names a section whose heading has no text.
	UntitledTitle = "untitled section"
)

var imagePattern = regexp.MustCompile(`!\[.*?\]\((.*?)\)`)

// Section is a titled span of the document plus the images inside it.
//
// Start and End are byte offsets into the source text, End exclusive.
// Part and Parts are set on the synthetic siblings produced by
// ExpandSections; an unsplit section has Parts == 0.
type Section struct {
	Title  string   `json:"title"`
	Text   string   `json:"text"`
	Images []string `json:"images,omitempty"`
	Start  int      `json:"start"`
	End    int      `json:"end"`
	Part   int      `json:"part,omitempty"`
	Parts  int      `json:"parts,omitempty"`
}

// Chars is the length of the section text in characters.
func (s Section) Chars() int {
	return utf8.RuneCountInString(s.Text)
}

// ImageRef is an image URL found in the document and the byte offset of its
// markdown reference.
type ImageRef struct {
	URL string
	Pos int
}

// ExtractImages returns every markdown image reference in text in document order.
// An optional quoted title after the URL is dropped; empty URLs are skipped.
func ExtractImages(text string) []ImageRef {
	var refs []ImageRef
	for _, m := range imagePattern.FindAllStringSubmatchIndex(text, -1) {
		fields := strings.Fields(text[m[2]:m[3]])
		if len(fields) == 0 {
			continue
		}
		refs = append(refs, ImageRef{URL: fields[0], Pos: m[0]})
	}
	return refs
}

// Segment splits text on level-1 and level-2 headings.
//
// Sections with a blank body are not emitted; their span is absorbed by the
// following section (or by the preceding one at the end of the document), so
// the returned offset ranges are contiguous and cover the whole input.
// A document without any non-blank body yields one catch-all section.
func Segment(text string) []Section {
	if text == "" {
		return nil
	}

	var (
		sections  []Section
		body      strings.Builder
		pos       int
		spanStart int
	)
	current := Section{Title: FrontMatterTitle}

	flush := func(end int) {
		trimmed := strings.TrimSpace(body.String())
		if trimmed == "" {
			return
		}
		current.Text = trimmed
		current.Start = spanStart
		current.End = end
		sections = append(sections, current)
		spanStart = end
	}

	for _, line := range strings.Split(text, "\n") {
		if title, ok := headingTitle(line); ok {
			flush(pos)
			current = Section{Title: title}
			body.Reset()
		} else {
			body.WriteString(line)
			body.WriteByte('\n')
		}
		pos += len(line) + 1
	}
	flush(len(text))

	if len(sections) == 0 {
		sections = []Section{{
			Title: FrontMatterTitle,
			Text:  strings.TrimSpace(text),
			Start: 0,
			End:   len(text),
		}}
	}
	sections[len(sections)-1].End = len(text)

	assignImages(sections, ExtractImages(text))
	return sections
}

func headingTitle(line string) (string, bool) {
	if !strings.HasPrefix(line, "# ") && !strings.HasPrefix(line, "## ") {
		return "", false
	}
	title := strings.TrimSpace(strings.TrimLeft(line, "#"))
	if title == "" {
		title = UntitledTitle
	}
	return title, true
}

func assignImages(sections []Section, refs []ImageRef) {
	for _, ref := range refs {
		// sections are sorted by Start and contiguous
		i := sort.Search(len(sections), func(i int) bool { return sections[i].End > ref.Pos })
		if i < len(sections) && sections[i].Start <= ref.Pos {
			sections[i].Images = append(sections[i].Images, ref.URL)
		}
	}
}
