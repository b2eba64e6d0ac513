// Package llm defines the mesh's view of the language model it calls: a
// single Client interface wrapping a generic HTTP text-completion
// endpoint, plus a mock for tests. The LLM itself is an external
// collaborator specified only at this interface.
package llm
