// Package store owns the on-disk document model. Each document is one YAML
// metadata file under <root>/metadata/<id>.yaml plus an optional body file
// under <root>/content/<id>.<version>.txt. Writes go through temp file +
// rename, and the body is always published before the metadata that points
// at it, so a crash between the two leaves the previous committed pair.
package store
