package deps

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// CheckNodeModule reports where Node will find module when Nyuu runs.
//
// Nyuu loads its yEnc encoder with require(), so the module must live in a
// node_modules tree Node searches: one of the configured node paths, an entry
// of NODE_PATH, or a node_modules directory beside the Nyuu installation.
// The detail names every location checked when the module is missing.
func CheckNodeModule(module, nyuuCommand string, nodePaths []string) Status {
	module = strings.TrimSpace(module)
	result := Status{
		Name:        module,
		Command:     module,
		Description: "yEnc encoder loaded by Nyuu",
	}
	if module == "" {
		result.Detail = "encoder module not configured"
		return result
	}

	candidates := ModuleSearchPaths(nyuuCommand, nodePaths)
	for _, dir := range candidates {
		path := filepath.Join(dir, module)
		if isModuleDir(path) {
			result.Path = path
			result.Available = true
			return result
		}
	}
	result.Detail = fmt.Sprintf("module %q not found in %s", module, strings.Join(candidates, ", "))
	if len(candidates) == 0 {
		result.Detail = fmt.Sprintf("module %q not found: no node_modules directory to search", module)
	}
	return result
}

// ModuleSearchPaths lists node_modules directories in lookup order without
// duplicates.
func ModuleSearchPaths(nyuuCommand string, nodePaths []string) []string {
	var candidates []string
	seen := make(map[string]bool)
	add := func(dir string) {
		dir = strings.TrimSpace(dir)
		if dir == "" {
			return
		}
		dir = filepath.Clean(dir)
		if seen[dir] {
			return
		}
		seen[dir] = true
		candidates = append(candidates, dir)
	}

	for _, dir := range nodePaths {
		add(dir)
	}
	for _, dir := range filepath.SplitList(os.Getenv("NODE_PATH")) {
		add(dir)
	}
	for _, dir := range installModuleDirs(nyuuCommand) {
		add(dir)
	}
	return candidates
}

// NodePathEnv returns a NODE_PATH assignment covering the search paths, for
// child processes that need to resolve the same modules.
func NodePathEnv(nyuuCommand string, nodePaths []string) string {
	paths := ModuleSearchPaths(nyuuCommand, nodePaths)
	if len(paths) == 0 {
		return ""
	}
	return "NODE_PATH=" + strings.Join(paths, string(os.PathListSeparator))
}

// installModuleDirs covers the usual npm layouts: a global install puts the
// nyuu launcher in <prefix>/bin and the package in
// <prefix>/lib/node_modules/nyuu, and a checkout has bin/nyuu.js next to its
// own node_modules.
func installModuleDirs(nyuuCommand string) []string {
	nyuuCommand = strings.TrimSpace(nyuuCommand)
	if nyuuCommand == "" {
		return nil
	}
	resolved, err := exec.LookPath(nyuuCommand)
	if err != nil {
		return nil
	}
	if target, err := filepath.EvalSymlinks(resolved); err == nil {
		resolved = target
	}
	binDir := filepath.Dir(resolved)
	pkgDir := filepath.Dir(binDir)
	return []string{
		filepath.Join(pkgDir, "node_modules"),
		filepath.Join(pkgDir, "lib", "node_modules"),
		filepath.Join(pkgDir, "lib", "node_modules", "nyuu", "node_modules"),
		filepath.Dir(pkgDir),
	}
}

func isModuleDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return false
	}
	for _, marker := range []string{"package.json", "index.js"} {
		if _, err := os.Stat(filepath.Join(path, marker)); err == nil {
			return true
		}
	}
	return false
}
