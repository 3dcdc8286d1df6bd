package chat

import (
	"encoding/json"
	"sync"

	"github.com/invopop/jsonschema"
)

var (
	schemaOnce sync.Once
	schemaJSON string
)

// ResponseSchemaJSON returns the JSON Schema of the structured reply
// contract, reflected once from the Go types. It is embedded into the
// system instruction so the model sees the exact shape the parser expects.
func ResponseSchemaJSON() string {
	schemaOnce.Do(func() {
		reflector := &jsonschema.Reflector{
			DoNotReference: true,
			Anonymous:      true,
		}
		schema := reflector.Reflect(&replyEnvelope{})
		schema.Version = ""
		out, err := json.MarshalIndent(schema, "", "  ")
		if err != nil {
			schemaJSON = "{}"
			return
		}
		schemaJSON = string(out)
	})
	return schemaJSON
}
