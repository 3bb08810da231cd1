// Package mock provides deterministic test doubles for the ai package
// interfaces. The embedder derives vectors from a content hash so identical
// text always embeds identically; the completer returns a template-conforming
// answer unless a custom function is injected.
package mock
