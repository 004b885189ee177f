package config

import (
	"reflect"
	"time"

	"github.com/goccy/go-json"
	"github.com/invopop/jsonschema"

	"seatwatch/internal/errs"
)

// Schema describes the config file as JSON Schema. Durations are strings
// such as "15s" or "1h30m".
func Schema() ([]byte, error) {
	reflector := &jsonschema.Reflector{
		FieldNameTag:               "mapstructure",
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
		ExpandedStruct:             true,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t == reflect.TypeOf(time.Duration(0)) {
				return &jsonschema.Schema{Type: "string", Pattern: `^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`}
			}
			return nil
		},
	}
	schema := reflector.Reflect(&Config{})
	schema.Title = "seatwatch configuration"

	out, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, errs.Wrap(err, "encode config schema")
	}
	return out, nil
}
