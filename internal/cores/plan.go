package cores

import (
	"io"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/crc-cores/internal/model"
)

// StageSpec describes one stage of the job for the plan command.
type StageSpec struct {
	Stage        string            `yaml:"stage"`
	From         string            `yaml:"from,omitempty"`
	Into         string            `yaml:"into,omitempty"`
	LocalField   string            `yaml:"local_field,omitempty"`
	ForeignField string            `yaml:"foreign_field,omitempty"`
	Fields       map[string]string `yaml:"fields,omitempty"`
	Policy       string            `yaml:"policy,omitempty"`
	Note         string            `yaml:"note,omitempty"`
}

// Plan lists the stages a run executes against cols with the pipeline's
// options.
func (p *Pipeline) Plan(cols Collections) []StageSpec {
	scrape := make(map[string]string, len(scrapeFields))
	for _, f := range scrapeFields {
		scrape[f.to] = f.from
	}
	gmu := make(map[string]string, len(gmuFields))
	for _, f := range gmuFields {
		gmu[f.to] = f.from
	}

	filter := "match all"
	if ff, ok := p.opts.Filter.(FieldFilter); ok && len(ff) > 0 {
		filter = ff.String()
	}

	return []StageSpec{
		{
			Stage:      "group",
			From:       cols.CoresRaw,
			LocalField: model.FieldLibNum,
			Note:       "one record per well; descriptive fields from the first member that has them",
		},
		{
			Stage:        "join",
			From:         cols.MapServer,
			LocalField:   model.FieldLibNum,
			ForeignField: pathLibNo,
			Fields:       map[string]string{model.FieldCRCWCURL: p.opts.ReportURLPrefix + "{" + pathMapID + "}"},
			Policy:       string(p.opts.MatchPolicy),
		},
		{
			Stage:        "join",
			From:         cols.Scraped,
			LocalField:   model.FieldCRCWCURL,
			ForeignField: pathSource,
			Fields:       scrape,
			Policy:       string(p.opts.MatchPolicy) + ", missing url: " + string(p.opts.MissingURL),
		},
		{
			Stage:        "join",
			From:         cols.GMU,
			LocalField:   model.FieldGeohash,
			ForeignField: pathGeohash,
			Fields:       gmu,
			Policy:       string(p.opts.MatchPolicy),
		},
		{
			Stage: "filter",
			Note:  filter,
		},
		{
			Stage: "replace",
			Into:  cols.Output,
			Note:  "stage then swap",
		},
	}
}

// WritePlan renders the plan as YAML.
func WritePlan(w io.Writer, stages []StageSpec) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(stages); err != nil {
		return eris.Wrap(err, "cores: encode plan")
	}
	return eris.Wrap(enc.Close(), "cores: encode plan")
}
