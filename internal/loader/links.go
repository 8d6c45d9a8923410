package loader

import (
	"fmt"

	"github.com/ledongthuc/pdf"
)

// ExtractLinks returns the distinct URI link annotations of a PDF in the order
// they first appear.
func ExtractLinks(path string) (links []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			links = nil
			err = fmt.Errorf("parse %s: %v", path, r)
		}
	}()

	reader, closeFn, err := openPDF(path)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	seen := make(map[string]bool)
	for i := 1; i <= reader.NumPage(); i++ {
		annots := reader.Page(i).V.Key("Annots")
		for j := 0; j < annots.Len(); j++ {
			annot := annots.Index(j)
			if annot.Key("Subtype").Name() != "Link" {
				continue
			}
			uri := annot.Key("A").Key("URI")
			if uri.Kind() != pdf.String {
				continue
			}
			link := uri.RawString()
			if link == "" || seen[link] {
				continue
			}
			seen[link] = true
			links = append(links, link)
		}
	}

	return links, nil
}
