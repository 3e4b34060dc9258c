package util

// EnvMode specifies how turbo should sanitize the environment variables
// that are visible to a task's child process.
type EnvMode string

const (
	// Infer means the task's env mode is derived from whether it declares a
	// passthroughEnv block: Strict if it does, Loose otherwise.
	Infer EnvMode = "infer"
	// Loose passes through the entire existing environment, as turbo has
	// historically done.
	Loose EnvMode = "loose"
	// Strict filters the environment down to the globally- and
	// task-declared env and passthroughEnv vars only.
	Strict EnvMode = "strict"
)
