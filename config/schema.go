package config

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/goccy/go-yaml"
	"github.com/google/jsonschema-go/jsonschema"
)

// SchemaID identifies the configuration file schema.
const SchemaID = "https://go.jacobcolvin.com/gpuprof/config.schema.json"

// ErrSchema indicates a configuration document that does not match
// [Schema].
var ErrSchema = errors.New("config does not match schema")

const durationPattern = `^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`

// Schema returns the JSON Schema (draft 2020-12) describing the
// configuration file. [CheckSchema] uses it to catch keys that [Parse]
// would silently ignore.
func Schema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Schema: "https://json-schema.org/draft/2020-12/schema",
		ID:     SchemaID,
		Title:  "gpuprof configuration",
		Type:   "object",
		Properties: map[string]*jsonschema.Schema{
			"activity": activitySchema(),
			"events": {
				Description: "Hardware events to collect per GPU context.",
				Types:       []string{"array", "null"},
				Items:       &jsonschema.Schema{Type: "string", MinLength: jsonschema.Ptr(1)},
			},
			"sample_period":    durationSchema("Interval between event samples.", DefaultSamplePeriod.String()),
			"multiplex_period": durationSchema("Time each event group is counted before switching.", DefaultMultiplexPeriod.String()),
			"report_period":    durationSchema("Interval between aggregated reports.", DefaultReportPeriod.String()),
		},
		AdditionalProperties: falseSchema(),
	}
}

func activitySchema() *jsonschema.Schema {
	path := func(desc string) *jsonschema.Schema {
		return &jsonschema.Schema{Type: "string", Description: desc}
	}
	rate := func(desc string) *jsonschema.Schema {
		return &jsonschema.Schema{Type: "integer", Minimum: jsonschema.Ptr(0.0), Description: desc}
	}

	return &jsonschema.Schema{
		Description: "Host activity outputs, written when profiling stops.",
		Types:       []string{"object", "null"},
		Properties: map[string]*jsonschema.Schema{
			"cpu_profile":            path("Host CPU activity output path."),
			"heap_profile":           path("Heap snapshot output path."),
			"allocs_profile":         path("Allocation snapshot output path."),
			"goroutine_profile":      path("Goroutine snapshot output path."),
			"block_profile":          path("Blocking snapshot output path."),
			"mutex_profile":          path("Mutex contention snapshot output path."),
			"mem_profile_rate":       rate("Bytes allocated per memory sample; 0 keeps the current rate."),
			"block_profile_rate":     rate("Nanoseconds blocked per block sample; 0 keeps the current rate."),
			"mutex_profile_fraction": rate("Reports 1/N mutex contention events; 0 keeps the current rate."),
		},
		AdditionalProperties: falseSchema(),
	}
}

func durationSchema(desc, def string) *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "string",
		Description: desc,
		Pattern:     durationPattern,
		Default:     json.RawMessage(fmt.Sprintf("%q", def)),
	}
}

func falseSchema() *jsonschema.Schema {
	return &jsonschema.Schema{Not: &jsonschema.Schema{}}
}

// CheckSchema validates a YAML configuration document against [Schema]. It
// does not apply the semantic checks of [Config.Validate].
func CheckSchema(data []byte) error {
	resolved, err := Schema().Resolve(nil)
	if err != nil {
		return fmt.Errorf("resolving schema: %w", err)
	}

	doc, err := yaml.YAMLToJSON(data)
	if err != nil {
		return fmt.Errorf("decoding config: %w", err)
	}

	var instance any

	err = json.Unmarshal(doc, &instance)
	if err != nil {
		return fmt.Errorf("decoding config: %w", err)
	}

	if instance == nil {
		return nil
	}

	err = resolved.Validate(instance)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSchema, err)
	}

	return nil
}
