package document

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
)

func imageURLs(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("http://img/%s/%d.png", prefix, i)
	}
	return out
}

func TestExpandSections_SplitsOversizedSection(t *testing.T) {
	t.Parallel()

	big := Section{Title: "Gallery", Text: "shared text", Images: imageURLs("g", 25)}
	expanded := ExpandSections([]Section{big}, 10)

	if len(expanded) != 3 {
		t.Fatalf("expected 3 synthetic sections, got %d", len(expanded))
	}
	wantCounts := []int{10, 10, 5}
	var all []string
	for i, s := range expanded {
		if len(s.Images) != wantCounts[i] {
			t.Fatalf("sibling %d has %d images, want %d", i, len(s.Images), wantCounts[i])
		}
		if s.Text != big.Text || s.Title != big.Title {
			t.Fatalf("sibling %d lost the section text or title", i)
		}
		if s.Part != i+1 || s.Parts != 3 {
			t.Fatalf("sibling %d part %d/%d", i, s.Part, s.Parts)
		}
		all = append(all, s.Images...)
	}
	if !reflect.DeepEqual(all, big.Images) {
		t.Fatal("expanded images do not reproduce the original set in order")
	}
}

func TestExpandSections_CeilProperty(t *testing.T) {
	t.Parallel()

	for _, k := range []int{11, 19, 20, 21, 37} {
		for _, limit := range []int{1, 3, 10} {
			if k <= limit {
				continue
			}
			expanded := ExpandSections([]Section{{Text: "x", Images: imageURLs("c", k)}}, limit)
			want := (k + limit - 1) / limit
			if len(expanded) != want {
				t.Fatalf("k=%d cap=%d: got %d siblings, want %d", k, limit, len(expanded), want)
			}
			seen := map[string]bool{}
			for _, s := range expanded {
				if len(s.Images) > limit {
					t.Fatalf("k=%d cap=%d: sibling with %d images", k, limit, len(s.Images))
				}
				for _, u := range s.Images {
					if seen[u] {
						t.Fatalf("duplicate image %s", u)
					}
					seen[u] = true
				}
			}
			if len(seen) != k {
				t.Fatalf("k=%d cap=%d: %d distinct images after expansion", k, limit, len(seen))
			}
		}
	}
}

func TestPlan_TwentyFiveImagesScenario(t *testing.T) {
	t.Parallel()

	sections := []Section{{Title: "Screens", Text: "text", Images: imageURLs("s", 25)}}
	batches := Plan(sections, 10, 60000)

	if len(batches) < 3 {
		t.Fatalf("expected at least 3 batches, got %d", len(batches))
	}
	var images []string
	for i, b := range batches {
		if b.Index != i {
			t.Fatalf("batch %d has index %d", i, b.Index)
		}
		if b.TotalImages > 10 {
			t.Fatalf("batch %d has %d images", i, b.TotalImages)
		}
		images = append(images, b.Images()...)
	}
	if !reflect.DeepEqual(images, sections[0].Images) {
		t.Fatal("images were reordered, dropped or duplicated across batches")
	}
}

func TestPlan_RespectsCaps(t *testing.T) {
	t.Parallel()

	var sections []Section
	for i := 0; i < 40; i++ {
		sections = append(sections, Section{
			Title:  fmt.Sprintf("s%d", i),
			Text:   strings.Repeat("a", 100+i*37%400),
			Images: imageURLs(fmt.Sprint(i), i%7),
		})
	}

	const imageCap, charCap = 8, 1500
	batches := Plan(sections, imageCap, charCap)

	var order []string
	for _, b := range batches {
		images, chars := 0, 0
		for _, s := range b.Sections {
			images += len(s.Images)
			chars += s.Chars()
			order = append(order, s.Title)
		}
		if images != b.TotalImages || chars != b.TotalChars {
			t.Fatalf("batch %d totals (%d,%d) do not match sections (%d,%d)", b.Index, b.TotalImages, b.TotalChars, images, chars)
		}
		if b.TotalImages > imageCap {
			t.Fatalf("batch %d exceeds image cap: %d", b.Index, b.TotalImages)
		}
		if b.TotalChars > charCap && len(b.Sections) > 1 {
			t.Fatalf("batch %d exceeds char cap with %d sections", b.Index, len(b.Sections))
		}
	}
	for i, title := range order {
		if title != fmt.Sprintf("s%d", i) {
			t.Fatalf("section order broken at %d: %s", i, title)
		}
	}
}

func TestPlan_OversizedTextGetsOwnBatch(t *testing.T) {
	t.Parallel()

	sections := []Section{
		{Title: "small", Text: "abc"},
		{Title: "huge", Text: strings.Repeat("x", 500)},
		{Title: "tail", Text: "def"},
	}
	batches := Plan(sections, 10, 100)
	if len(batches) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(batches))
	}
	if batches[1].Sections[0].Title != "huge" || len(batches[1].Sections) != 1 {
		t.Fatalf("oversized section not isolated: %+v", batches[1])
	}
}

func TestPlan_DefaultsForNonPositiveCaps(t *testing.T) {
	t.Parallel()

	sections := []Section{{Text: "t", Images: imageURLs("d", 12)}}
	batches := Plan(sections, 0, -1)
	if len(batches) != 2 || batches[0].TotalImages != DefaultImageCap {
		t.Fatalf("unexpected plan with default caps: %+v", batches)
	}
	if Plan(nil, 10, 10) != nil {
		t.Fatal("expected no batches for no sections")
	}
}

func TestBatchText(t *testing.T) {
	t.Parallel()

	b := Batch{Sections: []Section{
		{Title: "Login", Text: "user logs in"},
		{Title: "Gallery", Text: "pics", Part: 2, Parts: 3},
	}}
	want := "## Login\nuser logs in\n\n## Gallery (2/3)\npics"
	if got := b.Text(); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
