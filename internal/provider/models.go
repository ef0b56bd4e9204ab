package provider

// validModels is the fixed allow-list per provider. The first entry of
// each list is that provider's default model, substituted when a workflow
// requests a model outside the list.
var validModels = map[string][]string{
	"openai":    {"gpt-3.5-turbo", "gpt-4", "gpt-4-turbo"},
	"anthropic": {"claude-3-sonnet", "claude-3-opus", "claude-3-haiku"},
	"gemini":    {"gemini-2.5-pro", "gemini-2.5-flash", "gemini-2.5-flash-lite", "gemini-1.5-pro", "gemini-1.5-flash"},
}

// ValidModels returns the allow-list for the provider. Unknown providers
// get the openai list, mirroring the provider fallback behavior.
func ValidModels(providerName string) []string {
	if models, ok := validModels[providerName]; ok {
		return models
	}
	return validModels["openai"]
}

// ResolveModel returns model when it is allow-listed for the provider,
// otherwise the provider's default model. Substitution is silent: an
// unknown model is a configuration nit, not an execution failure.
func ResolveModel(providerName, model string) string {
	models := ValidModels(providerName)
	for _, m := range models {
		if m == model {
			return model
		}
	}
	return models[0]
}
