package cores

import (
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/crc-cores/internal/model"
)

// Map-server, scrape and geologic context join paths.
const (
	pathLibNo   = "properties.libno"
	pathMapID   = "id"
	pathSource  = "source"
	pathGeohash = model.FieldGeohash
)

var scrapeFields = []struct{ from, to string }{
	{"documents", model.FieldDocuments},
	{"photos", model.FieldPhotoLinks},
	{"thin_sections", model.FieldThinSections},
}

var gmuFields = []struct{ from, to string }{
	{"data.rocktype", model.FieldSurfaceRocktype},
	{"data.age", model.FieldSurfaceAge},
	{"data.name", model.FieldGMUName},
	{"data.strat_unit", model.FieldStratUnit},
	{"data.map_ref.url", model.FieldGMURef},
}

type joiner struct {
	opts      Options
	mapserver *Index
	scraped   *Index
	gmu       *Index
}

// enrich turns one well into its output record.
func (j *joiner) enrich(w *Well, rep *Report) (model.OutputRecord, error) {
	var rec model.OutputRecord
	rec.Set(model.FieldLibNum, w.LibNum)
	for _, f := range model.WellFields[1:] {
		rec.Set(f, w.Fields[f])
	}
	rec.Intervals = w.Intervals

	// Map server
	matches, err := j.match(j.mapserver, w.Key, w, rep)
	if err != nil {
		return rec, err
	}
	id, _ := firstField(matches, pathMapID)
	if s, ok := model.Stringify(id); ok {
		rec.CRCWCURL = j.opts.ReportURLPrefix + s
	} else if len(matches) == 0 {
		rep.add(WarnMissingMapServer, w.LibNum, "no map-server record")
	} else {
		rep.add(WarnMissingMapServer, w.LibNum, "map-server record has no usable id")
	}

	// Scrape
	switch {
	case rec.CRCWCURL != "":
		matches, err = j.match(j.scraped, rec.CRCWCURL, w, rep)
	case j.opts.MissingURL == MissingURLLegacy:
		matches, err = j.match(j.scraped, nil, w, rep)
	default:
		matches = nil
	}
	if err != nil {
		return rec, err
	}
	for _, f := range scrapeFields {
		v, ok := firstField(matches, f.from)
		if !ok {
			continue
		}
		if _, isList := v.([]any); v != nil && !isList {
			rep.add(WarnSchemaDrift, w.LibNum, fmt.Sprintf("scraped %s is %T, not a list", f.from, v))
			continue
		}
		rec.Set(f.to, v)
	}

	// Geologic context
	matches, err = j.match(j.gmu, model.KeyOf(w.Fields[model.FieldGeohash]), w, rep)
	if err != nil {
		return rec, err
	}
	for _, f := range gmuFields {
		if v, ok := firstField(matches, f.from); ok {
			rec.Set(f.to, v)
		}
	}

	return rec, nil
}

// match looks key up in ix and applies the null-key and match policies.
func (j *joiner) match(ix *Index, key any, w *Well, rep *Report) ([]model.Doc, error) {
	if key == nil && j.opts.MissingURL != MissingURLLegacy {
		return nil, nil
	}
	matches := ix.Lookup(key)
	if len(matches) < 2 {
		return matches, nil
	}
	switch j.opts.MatchPolicy {
	case MatchStrict:
		return nil, eris.Wrapf(ErrAmbiguousMatch, "%s on %s = %v matched %d records", ix.name, ix.path, key, len(matches))
	case MatchWarn:
		rep.add(WarnAmbiguousMatch, w.LibNum,
			fmt.Sprintf("%s on %s = %v matched %d records; using the first", ix.name, ix.path, key, len(matches)))
	}
	return matches, nil
}

// firstField returns the value at path from the first document that has the
// field, mirroring $arrayElemAt over "$joined.path".
func firstField(docs []model.Doc, path string) (any, bool) {
	for _, d := range docs {
		if v, ok := d.Lookup(path); ok {
			return v, true
		}
	}
	return nil, false
}
