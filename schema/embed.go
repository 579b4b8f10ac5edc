package schema

import _ "embed"

// WorkersV1Schema contains the JSON schema for worker manifests.
//
//go:embed workers.v1.json
var WorkersV1Schema []byte
