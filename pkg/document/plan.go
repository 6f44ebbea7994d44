package document

import (
	"fmt"
	"strings"
)

const (
	DefaultImageCap = 10
	DefaultCharCap  = 60000
)

// Batch is a group of sections sent to the model in one call.
type Batch struct {
	Index       int       `json:"index"`
	Sections    []Section `json:"sections"`
	TotalImages int       `json:"total_images"`
	TotalChars  int       `json:"total_chars"`
}

// Images returns the image URLs of all sections in order.
func (b Batch) Images() []string {
	out := make([]string, 0, b.TotalImages)
	for _, s := range b.Sections {
		out = append(out, s.Images...)
	}
	return out
}

// Text renders the batch sections as markdown, one level-2 heading per section.
func (b Batch) Text() string {
	parts := make([]string, 0, len(b.Sections))
	for _, s := range b.Sections {
		title := s.Title
		if s.Parts > 1 {
			title = fmt.Sprintf("%s (%d/%d)", title, s.Part, s.Parts)
		}
		parts = append(parts, "## "+title+"\n"+s.Text)
	}
	return strings.Join(parts, "\n\n")
}

// ExpandSections splits every section holding more than imageCap images into
// synthetic siblings. Each sibling repeats the full text and carries the next
// contiguous slice of at most imageCap images.
func ExpandSections(sections []Section, imageCap int) []Section {
	if imageCap <= 0 {
		imageCap = DefaultImageCap
	}

	out := make([]Section, 0, len(sections))
	for _, s := range sections {
		if len(s.Images) <= imageCap {
			out = append(out, s)
			continue
		}
		parts := (len(s.Images) + imageCap - 1) / imageCap
		for i := 0; i < parts; i++ {
			lo := i * imageCap
			hi := min(lo+imageCap, len(s.Images))
			sibling := s
			sibling.Images = append([]string(nil), s.Images[lo:hi]...)
			sibling.Part = i + 1
			sibling.Parts = parts
			out = append(out, sibling)
		}
	}
	return out
}

// Plan expands oversized sections and then packs them greedily, in order,
// into batches bounded by imageCap images and charCap characters. A section
// that alone exceeds charCap becomes a batch of its own.
// Non-positive caps fall back to DefaultImageCap and DefaultCharCap.
func Plan(sections []Section, imageCap, charCap int) []Batch {
	if imageCap <= 0 {
		imageCap = DefaultImageCap
	}
	if charCap <= 0 {
		charCap = DefaultCharCap
	}

	var (
		batches []Batch
		current Batch
	)
	for _, s := range ExpandSections(sections, imageCap) {
		images := len(s.Images)
		chars := s.Chars()

		if len(current.Sections) > 0 &&
			(current.TotalImages+images > imageCap || current.TotalChars+chars > charCap) {
			batches = append(batches, current)
			current = Batch{}
		}

		current.Sections = append(current.Sections, s)
		current.TotalImages += images
		current.TotalChars += chars
	}
	if len(current.Sections) > 0 {
		batches = append(batches, current)
	}

	for i := range batches {
		batches[i].Index = i
	}
	return batches
}

// CountImages sums the image references of all sections.
func CountImages(sections []Section) int {
	n := 0
	for _, s := range sections {
		n += len(s.Images)
	}
	return n
}
