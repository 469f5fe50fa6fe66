// path: internal/strategy/template.go
package strategy

import (
	"strings"

	"github.com/tidwall/gjson"
)

// RenderTemplate substitutes {{path}} placeholders with values pulled from
// the pipeline result JSON. Paths are gjson expressions rooted at the result
// document (e.g. {{metadata.title}} or {{artifacts.video}}). Unresolvable
// placeholders render empty.
func RenderTemplate(tmpl string, resultJSON []byte) string {
	doc := string(resultJSON)
	var b strings.Builder
	for {
		start := strings.Index(tmpl, "{{")
		if start < 0 {
			b.WriteString(tmpl)
			break
		}
		end := strings.Index(tmpl[start:], "}}")
		if end < 0 {
			b.WriteString(tmpl)
			break
		}
		b.WriteString(tmpl[:start])
		path := strings.TrimSpace(tmpl[start+2 : start+end])
		if path != "" {
			b.WriteString(gjson.Get(doc, path).String())
		}
		tmpl = tmpl[start+end+2:]
	}
	return b.String()
}

// BaseMetadata extracts the default publish bundle from a pipeline result.
func BaseMetadata(resultJSON []byte) Metadata {
	doc := string(resultJSON)
	meta := Metadata{
		Title:        gjson.Get(doc, "metadata.title").String(),
		Description:  gjson.Get(doc, "metadata.description").String(),
		ThumbnailRef: gjson.Get(doc, "artifacts.thumbnail").String(),
		VideoRef:     gjson.Get(doc, "artifacts.video").String(),
		Privacy:      "public",
	}
	if p := gjson.Get(doc, "metadata.privacy").String(); p != "" {
		meta.Privacy = p
	}
	for _, tag := range gjson.Get(doc, "metadata.tags").Array() {
		if t := tag.String(); t != "" {
			meta.Tags = append(meta.Tags, t)
		}
	}
	return meta
}
