package document

import (
	"reflect"
	"strings"
	"testing"
)

func assertCoverage(t *testing.T, text string, sections []Section) {
	t.Helper()
	if text == "" {
		if len(sections) != 0 {
			t.Fatalf("expected no sections for empty input, got %d", len(sections))
		}
		return
	}
	if len(sections) == 0 {
		t.Fatal("expected at least one section")
	}
	if sections[0].Start != 0 {
		t.Fatalf("first section starts at %d, want 0", sections[0].Start)
	}
	for i, s := range sections {
		if s.Start >= s.End {
			t.Fatalf("section %d has empty range [%d,%d)", i, s.Start, s.End)
		}
		if i > 0 && sections[i-1].End != s.Start {
			t.Fatalf("gap or overlap between section %d end %d and section %d start %d", i-1, sections[i-1].End, i, s.Start)
		}
	}
	if last := sections[len(sections)-1].End; last != len(text) {
		t.Fatalf("last section ends at %d, want %d", last, len(text))
	}
}

func TestSegment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		text   string
		titles []string
		texts  []string
		images [][]string
	}{
		{
			name:   "front_matter_and_headings",
			text:   "intro\n# Login\nalpha\n## Reset\nbeta ![x](http://img/1.png)\n",
			titles: []string{FrontMatterTitle, "Login", "Reset"},
			texts:  []string{"intro", "alpha", "beta ![x](http://img/1.png)"},
			images: [][]string{nil, nil, {"http://img/1.png"}},
		},
		{
			name:   "empty_heading_absorbed_by_next",
			text:   "# A\n# B\nbody",
			titles: []string{"B"},
			texts:  []string{"body"},
			images: [][]string{nil},
		},
		{
			name:   "untitled_heading",
			text:   "# \nbody",
			titles: []string{UntitledTitle},
			texts:  []string{"body"},
			images: [][]string{nil},
		},
		{
			name:   "level_three_is_body",
			text:   "# Top\n### detail\ntext",
			titles: []string{"Top"},
			texts:  []string{"### detail\ntext"},
			images: [][]string{nil},
		},
		{
			name:   "trailing_empty_heading_extends_previous",
			text:   "# A\nbody\n# Tail\n",
			titles: []string{"A"},
			texts:  []string{"body"},
			images: [][]string{nil},
		},
		{
			name:   "only_headings_yields_catch_all",
			text:   "# Only\n## Headings\n",
			titles: []string{FrontMatterTitle},
			texts:  []string{"# Only\n## Headings"},
			images: [][]string{nil},
		},
		{
			name:   "crlf_headings",
			text:   "# One\r\nfirst\r\n## Two\r\nsecond ![](a.png)\r\n",
			titles: []string{"One", "Two"},
			texts:  []string{"first", "second ![](a.png)"},
			images: [][]string{nil, {"a.png"}},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := Segment(tc.text)
			assertCoverage(t, tc.text, got)
			if len(got) != len(tc.titles) {
				t.Fatalf("got %d sections, want %d: %+v", len(got), len(tc.titles), got)
			}
			for i, s := range got {
				if s.Title != tc.titles[i] {
					t.Fatalf("section %d title %q, want %q", i, s.Title, tc.titles[i])
				}
				if s.Text != tc.texts[i] {
					t.Fatalf("section %d text %q, want %q", i, s.Text, tc.texts[i])
				}
				if !reflect.DeepEqual(s.Images, tc.images[i]) {
					t.Fatalf("section %d images %v, want %v", i, s.Images, tc.images[i])
				}
			}
		})
	}
}

func TestSegmentCoverage(t *testing.T) {
	t.Parallel()

	docs := []string{
		"",
		"\n",
		"plain text without headings",
		"# A\n\n\n# B\n\n## C\ncontent\n\n",
		"pre\n# A\n![a](1)\n## B\n![b](2) ![c](3)\n# C\n",
		strings.Repeat("# H\nline\n", 50),
		"## 需求\n用户登录 ![图](http://x/1.png)\n## 验收\n通过",
	}
	for _, doc := range docs {
		sections := Segment(doc)
		assertCoverage(t, doc, sections)

		want := ExtractImages(doc)
		var got []string
		for _, s := range sections {
			got = append(got, s.Images...)
		}
		if len(got) != len(want) {
			t.Fatalf("doc %q: %d images assigned, %d referenced", doc, len(got), len(want))
		}
		for i := range want {
			if got[i] != want[i].URL {
				t.Fatalf("doc %q: image %d is %q, want %q", doc, i, got[i], want[i].URL)
			}
		}
	}
}

func TestExtractImages(t *testing.T) {
	t.Parallel()

	text := `a ![one](http://h/1.png) b ![](  http://h/2.jpg  ) ![t](http://h/3.png "caption") ![empty]()`
	refs := ExtractImages(text)
	want := []string{"http://h/1.png", "http://h/2.jpg", "http://h/3.png"}
	if len(refs) != len(want) {
		t.Fatalf("got %d refs, want %d", len(refs), len(want))
	}
	for i, r := range refs {
		if r.URL != want[i] {
			t.Fatalf("ref %d: got %q, want %q", i, r.URL, want[i])
		}
		if !strings.HasPrefix(text[r.Pos:], "![") {
			t.Fatalf("ref %d position %d does not point at the reference", i, r.Pos)
		}
	}
}
