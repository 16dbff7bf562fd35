package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/manifoldco/promptui"
)

// projectTypePatterns maps marker files to human-readable project types
// and a recommended include glob.
var projectTypePatterns = map[string]struct {
	Name    string
	Include string
}{
	"go.mod":           {Name: "Go", Include: "**/*.go"},
	"package.json":     {Name: "Node.js/TypeScript", Include: "**/*.{js,ts,jsx,tsx}"},
	"requirements.txt": {Name: "Python", Include: "**/*.py"},
	"pyproject.toml":   {Name: "Python", Include: "**/*.py"},
	"Cargo.toml":       {Name: "Rust", Include: "**/*.rs"},
	"pom.xml":          {Name: "Java", Include: "**/*.java"},
	"build.gradle":     {Name: "Java/Kotlin", Include: "**/*.{java,kt}"},
	"Gemfile":          {Name: "Ruby", Include: "**/*.rb"},
	"composer.json":    {Name: "PHP", Include: "**/*.php"},
	"*.csproj":         {Name: ".NET", Include: "**/*.cs"},
}

// detectProjectType checks the given directory for well-known project markers.
func detectProjectType(root string) (name string, include string) {
	for marker, info := range projectTypePatterns {
		matches, _ := filepath.Glob(filepath.Join(root, marker))
		if len(matches) > 0 {
			return info.Name, info.Include
		}
	}
	return "", "**"
}

// RunWizard runs an interactive configuration wizard and returns the
// resulting Config. It also saves the config to .predictd.yml.
func RunWizard() (*Config, error) {
	fmt.Println("Welcome to predictd! Let's configure this codebase sidecar.")
	fmt.Println()

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolving working directory: %w", err)
	}

	// 1. Code root.
	rootPrompt := promptui.Prompt{
		Label:   "Root path of the codebase to index",
		Default: cwd,
	}
	codeRoot, err := rootPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("code root: %w", err)
	}

	projType, defaultInclude := detectProjectType(codeRoot)
	if projType != "" {
		fmt.Printf("Detected project type: %s\n\n", projType)
	}

	// 2. Bind address.
	bindPrompt := promptui.Prompt{
		Label:   "HTTP bind address",
		Default: ":8900",
	}
	bind, err := bindPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("bind address: %w", err)
	}

	// 3. Score Store backend.
	kvPrompt := promptui.Select{
		Label: "Score Store backend",
		Items: []string{
			"memory — fast, does not survive restarts",
			"sqlite — durable, backed by the project database",
		},
	}
	kvIdx, _, err := kvPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("kv backend selection: %w", err)
	}
	backends := []KVBackend{KVMemory, KVSQLite}
	kvBackend := backends[kvIdx]

	// 4. Include patterns.
	includePrompt := promptui.Prompt{
		Label:   "Include patterns (comma-separated globs)",
		Default: defaultInclude,
	}
	includeStr, err := includePrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("include patterns: %w", err)
	}
	include := splitAndTrim(includeStr)

	// 5. Extra exclude patterns.
	excludePrompt := promptui.Prompt{
		Label:   "Extra exclude patterns (comma-separated, leave blank for defaults)",
		Default: "",
	}
	excludeStr, err := excludePrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("exclude patterns: %w", err)
	}
	exclude := DefaultExcludes
	if excludeStr != "" {
		exclude = append(exclude, splitAndTrim(excludeStr)...)
	}

	cfg := DefaultConfig()
	cfg.CodeRoot = codeRoot
	cfg.Bind = bind
	cfg.KVBackend = kvBackend
	cfg.Include = include
	cfg.Exclude = exclude

	configPath := ".predictd.yml"
	if err := cfg.Save(configPath); err != nil {
		return nil, fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("\nConfiguration saved to %s\n", configPath)
	return cfg, nil
}

// splitAndTrim splits a comma-separated string and trims whitespace.
func splitAndTrim(s string) []string {
	var result []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			token := trimSpace(s[start:i])
			if token != "" {
				result = append(result, token)
			}
			start = i + 1
		}
	}
	return result
}

func trimSpace(s string) string {
	i, j := 0, len(s)
	for i < j && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	for j > i && (s[j-1] == ' ' || s[j-1] == '\t') {
		j--
	}
	return s[i:j]
}
