package scenario

import (
	"encoding/json"
	"sync"

	invopop "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaURL = "scenario.schema.json"

var (
	schemaOnce sync.Once
	schemaVal  *jsonschema.Schema
	schemaErr  error
)

// SchemaJSON returns the JSON Schema of the scenario format, derived from the
// Scenario struct tags.
func SchemaJSON() ([]byte, error) {
	r := &invopop.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
		Anonymous:      true,
	}
	return json.MarshalIndent(r.Reflect(&Scenario{}), "", "  ")
}

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		b, err := SchemaJSON()
		if err != nil {
			schemaErr = err
			return
		}
		schemaVal, schemaErr = jsonschema.CompileString(schemaURL, string(b))
	})
	return schemaVal, schemaErr
}
