package credpool

import "github.com/santhosh-tekuri/jsonschema/v5"

// credentialSetSchema is the required shape of a secret-store credential-set
// document. Documents that fail validation are reported as malformed, never
// silently coerced.
const credentialSetSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["count", "sets"],
	"properties": {
		"count": {"type": "integer", "minimum": 1},
		"sets": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["client_id", "client_secret"],
				"properties": {
					"client_id": {"type": "string", "minLength": 1},
					"client_secret": {"type": "string", "minLength": 1}
				}
			}
		},
		"org": {"type": "string"},
		"contact": {"type": "string"}
	}
}`

var setSchema = jsonschema.MustCompileString("credential-set.json", credentialSetSchema)
