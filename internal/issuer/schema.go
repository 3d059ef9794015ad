package issuer

import (
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const issueResponseSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["url", "checksumSha256", "expiresAt", "totalPages"],
  "properties": {
    "url": {"type": "string", "minLength": 1},
    "checksumSha256": {"type": "string", "pattern": "^[0-9a-fA-F]{64}$"},
    "expiresAt": {"type": "string", "minLength": 1},
    "totalPages": {"type": "integer", "minimum": 1}
  }
}`

const searchResponseSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["page", "snippet"],
    "properties": {
      "page": {"type": "integer", "minimum": 1},
      "snippet": {"type": "string"}
    }
  }
}`

var (
	issueSchema  = jsonschema.MustCompileString("docguard://issue-response.json", issueResponseSchema)
	searchSchema = jsonschema.MustCompileString("docguard://search-response.json", searchResponseSchema)
)
