// Package analysis turns questions into template-conforming answers: optional
// evidence retrieval, one chat completion, output validation with
// deterministic fallback, and TTL caching of the result.
package analysis
