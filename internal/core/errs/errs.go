// Package errs holds the error kinds shared by the serializer, the geometry
// builder and the STAC factories. Callers match them with errors.Is.
package errs

import "errors"

var (
	// requested schema version is not registered
	ErrUnsupportedVersion = errors.New("unsupported schema version")

	// encoded operation does not satisfy the version's JSON Schema
	ErrSchemaValidation = errors.New("schema validation failed")

	// caller passed an unvalidated record or an out-of-contract value
	ErrMalformedInput = errors.New("malformed input")

	// bounding box cannot be turned into a closed ring
	ErrGeometry = errors.New("geometry error")
)
