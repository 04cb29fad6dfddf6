// Package autoload registers every built-in LLM provider.
package autoload

import (
	_ "kernelapi/pkg/llm/gemini"
	_ "kernelapi/pkg/llm/ollama"
	_ "kernelapi/pkg/llm/openailm"
)
