package model

// Source field names. These are part of the collections' document schema and
// must be preserved exactly, spaces included.
const (
	FieldLibNum            = "Lib Num"
	FieldAPINum            = "API Num"
	FieldOperator          = "Operator"
	FieldWellName          = "Well Name"
	FieldField             = "Field"
	FieldState             = "State"
	FieldCounty            = "County"
	FieldType              = "Type"
	FieldPhotos            = "Photos"
	FieldThinSec           = "Thin Sec"
	FieldAnalysis          = "Analysis"
	FieldLatitude          = "Latitude"
	FieldLongitude         = "Longitude"
	FieldGeohash           = "coordinates_geohash"
	FieldSource            = "Source"
	FieldSecurityFlag      = "Security Flag"
	FieldCRCCollectionName = "crc_collection_name"
	FieldSBParentID        = "sb_parent_id"

	FieldFormation = "Formation"
	FieldAge       = "Age"
	FieldMinDepth  = "Min Depth"
	FieldMaxDepth  = "Max Depth"

	FieldIntervals       = "intervals"
	FieldCRCWCURL        = "crcwc_url"
	FieldDocuments       = "documents"
	FieldPhotoLinks      = "photos"
	FieldThinSections    = "thin_sections"
	FieldSurfaceRocktype = "surface_rocktype"
	FieldSurfaceAge      = "surface_age"
	FieldGMUName         = "gmu_name"
	FieldStratUnit       = "strat_unit"
	FieldGMURef          = "gmu_ref"
)

// WellFields lists the descriptive fields copied from the first interval of
// each well, in output order.
var WellFields = []string{
	FieldLibNum,
	FieldAPINum,
	FieldOperator,
	FieldWellName,
	FieldField,
	FieldState,
	FieldCounty,
	FieldType,
	FieldPhotos,
	FieldThinSec,
	FieldAnalysis,
	FieldLatitude,
	FieldLongitude,
	FieldGeohash,
	FieldSource,
	FieldSecurityFlag,
	FieldCRCCollectionName,
	FieldSBParentID,
}

// EnrichmentFields lists the fields attached by the joins, in output order.
var EnrichmentFields = []string{
	FieldCRCWCURL,
	FieldDocuments,
	FieldPhotoLinks,
	FieldThinSections,
	FieldSurfaceRocktype,
	FieldSurfaceAge,
	FieldGMUName,
	FieldStratUnit,
	FieldGMURef,
}

// Interval is one depth-bounded subsection of a core.
type Interval struct {
	Formation any `json:"Formation" bson:"Formation"`
	Age       any `json:"Age" bson:"Age"`
	MinDepth  any `json:"Min Depth" bson:"Min Depth"`
	MaxDepth  any `json:"Max Depth" bson:"Max Depth"`
}

// OutputRecord is one well in the materialized cores collection. Descriptive
// fields are always written (null when unknown); enrichment fields are
// omitted when their join found nothing.
type OutputRecord struct {
	LibNum            any `json:"Lib Num" bson:"Lib Num"`
	APINum            any `json:"API Num" bson:"API Num"`
	Operator          any `json:"Operator" bson:"Operator"`
	WellName          any `json:"Well Name" bson:"Well Name"`
	Field             any `json:"Field" bson:"Field"`
	State             any `json:"State" bson:"State"`
	County            any `json:"County" bson:"County"`
	Type              any `json:"Type" bson:"Type"`
	Photos            any `json:"Photos" bson:"Photos"`
	ThinSec           any `json:"Thin Sec" bson:"Thin Sec"`
	Analysis          any `json:"Analysis" bson:"Analysis"`
	Latitude          any `json:"Latitude" bson:"Latitude"`
	Longitude         any `json:"Longitude" bson:"Longitude"`
	Geohash           any `json:"coordinates_geohash" bson:"coordinates_geohash"`
	Source            any `json:"Source" bson:"Source"`
	SecurityFlag      any `json:"Security Flag" bson:"Security Flag"`
	CRCCollectionName any `json:"crc_collection_name" bson:"crc_collection_name"`
	SBParentID        any `json:"sb_parent_id" bson:"sb_parent_id"`

	Intervals []Interval `json:"intervals" bson:"intervals"`

	CRCWCURL        string `json:"crcwc_url,omitempty" bson:"crcwc_url,omitempty"`
	Documents       any    `json:"documents,omitempty" bson:"documents,omitempty"`
	PhotoLinks      any    `json:"photos,omitempty" bson:"photos,omitempty"`
	ThinSections    any    `json:"thin_sections,omitempty" bson:"thin_sections,omitempty"`
	SurfaceRocktype any    `json:"surface_rocktype,omitempty" bson:"surface_rocktype,omitempty"`
	SurfaceAge      any    `json:"surface_age,omitempty" bson:"surface_age,omitempty"`
	GMUName         any    `json:"gmu_name,omitempty" bson:"gmu_name,omitempty"`
	StratUnit       any    `json:"strat_unit,omitempty" bson:"strat_unit,omitempty"`
	GMURef          any    `json:"gmu_ref,omitempty" bson:"gmu_ref,omitempty"`
}

func (r *OutputRecord) slot(name string) *any {
	switch name {
	case FieldLibNum:
		return &r.LibNum
	case FieldAPINum:
		return &r.APINum
	case FieldOperator:
		return &r.Operator
	case FieldWellName:
		return &r.WellName
	case FieldField:
		return &r.Field
	case FieldState:
		return &r.State
	case FieldCounty:
		return &r.County
	case FieldType:
		return &r.Type
	case FieldPhotos:
		return &r.Photos
	case FieldThinSec:
		return &r.ThinSec
	case FieldAnalysis:
		return &r.Analysis
	case FieldLatitude:
		return &r.Latitude
	case FieldLongitude:
		return &r.Longitude
	case FieldGeohash:
		return &r.Geohash
	case FieldSource:
		return &r.Source
	case FieldSecurityFlag:
		return &r.SecurityFlag
	case FieldCRCCollectionName:
		return &r.CRCCollectionName
	case FieldSBParentID:
		return &r.SBParentID
	case FieldDocuments:
		return &r.Documents
	case FieldPhotoLinks:
		return &r.PhotoLinks
	case FieldThinSections:
		return &r.ThinSections
	case FieldSurfaceRocktype:
		return &r.SurfaceRocktype
	case FieldSurfaceAge:
		return &r.SurfaceAge
	case FieldGMUName:
		return &r.GMUName
	case FieldStratUnit:
		return &r.StratUnit
	case FieldGMURef:
		return &r.GMURef
	default:
		return nil
	}
}

// Get returns the value of a top-level output field by its document name.
// Intervals are returned as []Interval.
func (r *OutputRecord) Get(name string) (any, bool) {
	switch name {
	case FieldIntervals:
		return r.Intervals, true
	case FieldCRCWCURL:
		if r.CRCWCURL == "" {
			return nil, false
		}
		return r.CRCWCURL, true
	}
	s := r.slot(name)
	if s == nil {
		return nil, false
	}
	return *s, true
}

// Set assigns a top-level scalar or list field by its document name and
// reports whether the name is known. Intervals cannot be set this way.
func (r *OutputRecord) Set(name string, v any) bool {
	if name == FieldCRCWCURL {
		s, _ := v.(string)
		r.CRCWCURL = s
		return true
	}
	s := r.slot(name)
	if s == nil {
		return false
	}
	*s = v
	return true
}

// RecordFromDoc rebuilds an OutputRecord from a normalized document, as read
// back from the output collection.
func RecordFromDoc(d Doc) OutputRecord {
	var r OutputRecord
	for _, f := range WellFields {
		r.Set(f, d[f])
	}
	for _, f := range EnrichmentFields {
		if v, ok := d[f]; ok {
			r.Set(f, v)
		}
	}
	if items, ok := d[FieldIntervals].([]any); ok {
		r.Intervals = make([]Interval, 0, len(items))
		for _, it := range items {
			m, _ := it.(map[string]any)
			r.Intervals = append(r.Intervals, Interval{
				Formation: m[FieldFormation],
				Age:       m[FieldAge],
				MinDepth:  m[FieldMinDepth],
				MaxDepth:  m[FieldMaxDepth],
			})
		}
	}
	return r
}
