// Package files stores uploaded dataset files on disk.
//
// Every upload is written under a single base directory with a generated
// name of the form <id>_<sanitized original name>. Callers never pass raw
// paths from requests: Save picks the name, and Open and Remove only accept
// names returned by Save or List.
//
// Example usage:
//
//	store, err := files.NewStore("./uploads", 100<<20, logger)
//	info, err := store.Save(ctx, "Statement March.csv", r)
//	f, err := store.Open(info.Name)
package files
