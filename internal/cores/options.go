package cores

import (
	"github.com/rotisserie/eris"
)

// DefaultReportURLPrefix is prepended to the map-server id to form crcwc_url.
const DefaultReportURLPrefix = "https://my.usgs.gov/crcwc/core/report/"

// DefaultConcurrency is the number of partitions enriched at once.
const DefaultConcurrency = 8

// MatchPolicy decides what happens when a join finds more than one record.
type MatchPolicy string

const (
	// MatchFirst takes the first match in collection order silently.
	MatchFirst MatchPolicy = "first"
	// MatchWarn takes the first match and records an ambiguous_match warning.
	MatchWarn MatchPolicy = "warn"
	// MatchStrict fails the run on the first ambiguous join.
	MatchStrict MatchPolicy = "strict"
)

// ParseMatchPolicy parses a policy name. The empty string means MatchWarn.
func ParseMatchPolicy(s string) (MatchPolicy, error) {
	switch MatchPolicy(s) {
	case "":
		return MatchWarn, nil
	case MatchFirst, MatchWarn, MatchStrict:
		return MatchPolicy(s), nil
	default:
		return "", eris.Errorf("cores: unknown match policy %q", s)
	}
}

// MissingURLPolicy decides how the scrape join treats wells without a
// map-server match.
type MissingURLPolicy string

const (
	// MissingURLSkip leaves crcwc_url absent and skips the scrape join.
	MissingURLSkip MissingURLPolicy = "skip"
	// MissingURLLegacy joins the null URL against scraped pages whose source
	// is null or missing, as $lookup does.
	MissingURLLegacy MissingURLPolicy = "legacy"
)

// ParseMissingURLPolicy parses a policy name. The empty string means
// MissingURLSkip.
func ParseMissingURLPolicy(s string) (MissingURLPolicy, error) {
	switch MissingURLPolicy(s) {
	case "":
		return MissingURLSkip, nil
	case MissingURLSkip, MissingURLLegacy:
		return MissingURLPolicy(s), nil
	default:
		return "", eris.Errorf("cores: unknown missing-url policy %q", s)
	}
}

// Options configures a Pipeline.
type Options struct {
	Concurrency     int
	ReportURLPrefix string
	MatchPolicy     MatchPolicy
	MissingURL      MissingURLPolicy
	Filter          Filter // nil means MatchAll
}

func (o Options) withDefaults() Options {
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	if o.ReportURLPrefix == "" {
		o.ReportURLPrefix = DefaultReportURLPrefix
	}
	if o.MatchPolicy == "" {
		o.MatchPolicy = MatchWarn
	}
	if o.MissingURL == "" {
		o.MissingURL = MissingURLSkip
	}
	if o.Filter == nil {
		o.Filter = MatchAll
	}
	return o
}

// Collections names the collections a run reads and writes.
type Collections struct {
	CoresRaw  string
	MapServer string
	Scraped   string
	GMU       string
	Output    string
}

// DefaultCollections returns the production collection names.
func DefaultCollections() Collections {
	return Collections{
		CoresRaw:  "cores_raw",
		MapServer: "cores_from_mapserver",
		Scraped:   "scraped_web_pages",
		GMU:       "gmu_context",
		Output:    "cores",
	}
}
