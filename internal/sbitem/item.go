// Package sbitem builds ScienceBase catalog items from enriched CRC well
// records.
package sbitem

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/crc-cores/internal/model"
)

// ErrNoReportURL is returned for records without a well catalog URL; the
// URL tail is the item's primary identifier.
var ErrNoReportURL = errors.New("sbitem: record has no crcwc_url")

const (
	linkTypeWebPage  = "4f4e475de4b07f02db47debf"
	linkTypeDownload = "4f4e475de4b07f02db47dec0"

	crcPartyID     = 17172
	stewardPartyID = 4685
	stewardName    = "Jeannine Honey"

	maxTagLen = 80

	provenanceNote = "Harvested and assembled from: CRC web site download, CRC web site scrape, " +
		"MapServer layers, Macrostrat API. Data were assembled in an intermediary MongoDB instance, " +
		"structured with code to product ScienceBase Items, and loaded to ScienceBase collection."
)

// Item is a ScienceBase item document.
type Item struct {
	ParentID         any          `json:"parentId"`
	Identifiers      []Identifier `json:"identifiers"`
	Title            string       `json:"title"`
	Body             string       `json:"body"`
	Contacts         []Contact    `json:"contacts"`
	Provenance       Provenance   `json:"provenance"`
	BrowseCategories []string     `json:"browseCategories"`
	WebLinks         []WebLink    `json:"webLinks"`
	Spatial          *Spatial     `json:"spatial,omitempty"`
	Tags             []Tag        `json:"tags,omitempty"`
}

type Identifier struct {
	Type   string `json:"type"`
	Scheme string `json:"scheme"`
	Key    any    `json:"key"`
}

type Contact struct {
	Name        any    `json:"name"`
	OldPartyID  int    `json:"oldPartyId,omitempty"`
	Type        string `json:"type"`
	ContactType string `json:"contactType"`
}

type Provenance struct {
	Annotation string `json:"annotation"`
}

type WebLink struct {
	Type              string `json:"type"`
	TypeLabel         string `json:"typeLabel"`
	URI               string `json:"uri"`
	Rel               string `json:"rel"`
	Title             string `json:"title"`
	Hidden            bool   `json:"hidden"`
	ItemWebLinkTypeID string `json:"itemWebLinkTypeId"`
}

// Spatial holds the item's representational point as [lon, lat].
type Spatial struct {
	RepresentationalPoint []float64 `json:"representationalPoint"`
}

type Tag struct {
	Type   string `json:"type"`
	Scheme string `json:"scheme"`
	Name   string `json:"name"`
}

// Build converts one output record into a ScienceBase item.
func Build(rec *model.OutputRecord) (*Item, error) {
	if rec.CRCWCURL == "" {
		return nil, eris.Wrapf(ErrNoReportURL, "sbitem: build %s", display(rec.LibNum))
	}

	body, err := buildBody(rec)
	if err != nil {
		return nil, err
	}

	item := &Item{
		ParentID:         rec.SBParentID,
		Identifiers:      identifiers(rec),
		Title:            title(rec),
		Body:             body,
		Contacts:         contacts(rec),
		Provenance:       Provenance{Annotation: provenanceNote},
		BrowseCategories: []string{"Physical Item"},
		WebLinks:         webLinks(rec),
		Spatial:          location(rec),
		Tags:             tags(rec),
	}
	return item, nil
}

func identifiers(rec *model.OutputRecord) []Identifier {
	ids := []Identifier{
		{Type: "uniqueKey", Scheme: "CRC Well Catalog Database ID", Key: lastSegment(rec.CRCWCURL)},
		{Type: "uniqueKey", Scheme: "CRC Library Number", Key: rec.LibNum},
	}
	if api, ok := rec.APINum.(string); ok {
		ids = append(ids, Identifier{Type: "uniqueKey", Scheme: "American Petroleum Institute Number", Key: api})
	}
	return ids
}

func title(rec *model.OutputRecord) string {
	return fmt.Sprintf("Core Research Center %s %s", capitalize(display(rec.CRCCollectionName)), display(rec.LibNum))
}

// capitalize upper-cases the first letter and lower-cases the rest.
func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return cases.Upper(language.Und).String(s[:size]) + cases.Lower(language.Und).String(s[size:])
}

func buildBody(rec *model.OutputRecord) (string, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return "", eris.Wrapf(err, "sbitem: encode record %s", display(rec.LibNum))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "<p>Core Research Center, %s %s, from well operated by %s</p>",
		display(rec.CRCCollectionName), display(rec.LibNum), display(rec.Operator))
	b.WriteString("<h4>Raw Properties from download, web scrape, MapServer, and Macrostrat API</h4>")
	b.WriteString("<div>")
	b.Write(raw)
	b.WriteString("</div>")
	return b.String(), nil
}

func contacts(rec *model.OutputRecord) []Contact {
	cs := []Contact{
		{Name: "Core Research Center", OldPartyID: crcPartyID, Type: "Data Owner", ContactType: "organization"},
		{Name: stewardName, OldPartyID: stewardPartyID, Type: "Data Steward", ContactType: "person"},
	}
	if rec.Operator != nil {
		cs = append(cs, Contact{Name: rec.Operator, Type: "Site Operator", ContactType: "organization"})
	}
	return cs
}

func webLinks(rec *model.OutputRecord) []WebLink {
	links := []WebLink{{
		Type:              "webLink",
		TypeLabel:         "Web Link",
		URI:               rec.CRCWCURL,
		Rel:               "related",
		Title:             "Core Research Center Well Catalog Web Page",
		ItemWebLinkTypeID: linkTypeWebPage,
	}}

	download := func(label, prefix, uri string) WebLink {
		return WebLink{
			Type:              "download",
			TypeLabel:         label,
			URI:               uri,
			Rel:               "related",
			Title:             prefix + " " + lastSegment(uri),
			ItemWebLinkTypeID: linkTypeDownload,
		}
	}

	for _, u := range stringList(rec.Documents) {
		links = append(links, download("Download", "Core Research Center Analysis File", u))
	}
	for _, u := range stringList(rec.PhotoLinks) {
		links = append(links, download("Photo", "Core Research Center Photo", u))
	}
	if items, ok := rec.ThinSections.([]any); ok {
		for _, it := range items {
			m, _ := it.(map[string]any)
			if u, _ := m["View"].(string); u != "" {
				links = append(links, download("Thin Section", "Core Research Center Thin Section", u))
			}
		}
	}
	return links
}

// location returns the well's point when both coordinates are strings that
// parse to a valid longitude and latitude.
func location(rec *model.OutputRecord) *Spatial {
	latStr, ok := rec.Latitude.(string)
	if !ok {
		return nil
	}
	lonStr, _ := rec.Longitude.(string)
	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil {
		return nil
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
	if err != nil {
		return nil
	}
	pt := geom.NewPointFlat(geom.XY, []float64{lon, lat})
	if pt.Y() < -90 || pt.Y() > 90 || pt.X() < -180 || pt.X() > 180 {
		return nil
	}
	return &Spatial{RepresentationalPoint: []float64{pt.X(), pt.Y()}}
}

func tags(rec *model.OutputRecord) []Tag {
	var out []Tag
	add := func(scheme, name string) {
		out = append(out, Tag{Type: "Theme", Scheme: scheme, Name: truncate(name, maxTagLen)})
	}

	for _, iv := range rec.Intervals {
		if f, ok := model.Stringify(iv.Formation); ok && f != "UNKNOWN" {
			add("Geologic Formation at Depth", f)
		}
		if a, ok := model.Stringify(iv.Age); ok && a != "UNKN" {
			add("Geologic Age at Depth", a)
		}
	}
	for _, rt := range stringList(rec.SurfaceRocktype) {
		add("Surface Rock Type", rt)
	}
	if s, _ := rec.SurfaceAge.(string); s != "" {
		add("Surface Geologic Age", s)
	}
	if s, _ := rec.GMUName.(string); s != "" {
		add("Geologic Map Unit Name", s)
	}
	if s, _ := rec.StratUnit.(string); s != "" {
		add("Stratigraphic Unit Name", s)
	}
	return out
}

// stringList returns the non-empty string elements of a list value.
func stringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func lastSegment(u string) string {
	return u[strings.LastIndex(u, "/")+1:]
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func display(v any) string {
	if v == nil {
		return "None"
	}
	if s, ok := model.Stringify(v); ok {
		return s
	}
	return fmt.Sprint(v)
}
