// Package ai defines the contracts for the external AI collaborators: text
// embedding for evidence retrieval and chat completion for analysis. Concrete
// implementations live in subpackages (openai for OpenAI-compatible APIs,
// mock for tests).
package ai
