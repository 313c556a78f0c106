// Package store persists attendance state in SQLite and exposes the
// operations the engine, web API, and CLI drive it with.
//
// The Store owns the database connection, schema migrations, and a single
// mutex serializing every operation within the process. Check-in and
// check-out daemons run as separate processes against the same database
// file; WAL mode plus busy retries keep cross-process writes safe, and the
// upsert semantics of the attendance tables keep them idempotent.
//
// Embeddings are stored through the versioned codec in internal/embedding;
// rows with payloads the codec rejects are skipped rather than failing the
// whole read. Bounding boxes persist as JSON [x0,y0,x1,y1] arrays.
//
// Schema changes are new files under migrations/; applied versions are
// tracked in schema_migrations and never rerun.
package store
