package config

// GetRuntimeBaseURL returns the base URL of the OpenAI-compatible inference server
func GetRuntimeBaseURL() string {
	return GetEnvOrDefault("RUNTIME_BASE_URL", "")
}

// GetRuntimeAPIKey returns the key sent to the inference server. OPENAI_KEY is
// accepted as a fallback.
func GetRuntimeAPIKey() string {
	return GetEnvOrDefault("RUNTIME_API_KEY", GetEnvOrDefault("OPENAI_KEY", ""))
}

// GetRuntimeModel returns the model name requested from the inference server
func GetRuntimeModel() string {
	return GetEnvOrDefault("RUNTIME_MODEL", "")
}
