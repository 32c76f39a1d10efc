// Package preflight provides system and backend validation to ensure
// ragcrawl can run successfully before starting its transport loop.
//
// The package validates:
//   - Disk space availability (minimum 100MB)
//   - Memory availability (minimum 1GB; compared against a fixed 4GB
//     estimate, system memory is not measured)
//   - Write permissions in the data directory
//   - File descriptor limits (minimum 1024)
//   - Embedding API and vector store reachability
//
// Use the Checker type to run all validations:
//
//	checker := preflight.New()
//	results := checker.RunAll(ctx, "/path/to/data")
//	results = append(results, checker.RunBackendChecks(ctx, embedder, st, dims)...)
//	if checker.HasCriticalFailures(results) {
//	    // Handle failures
//	}
package preflight
