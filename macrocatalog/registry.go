// Package macrocatalog loads named command macros from disk and keeps them
// available to the operator surfaces. A macro bundles a short sequence of
// engine command lines with {{placeholder}} arguments; invoking one expands
// the placeholders and plays the lines through the session's command path.
package macrocatalog

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// Macro is one named command sequence loaded from a macro file.
type Macro struct {
	Name        string          `json:"name"`
	Title       string          `json:"title,omitempty"`
	Description string          `json:"description,omitempty"`
	Arguments   []MacroArgument `json:"arguments,omitempty"`
	Commands    []string        `json:"commands"`
	SourcePath  string          `json:"-"`
}

// MacroArgument describes one named placeholder argument.
type MacroArgument struct {
	Name     string `json:"name"`
	Required bool   `json:"required,omitempty"`
}

// MacroFileSnapshot captures one macro file's identity for deterministic
// change detection.
type MacroFileSnapshot struct {
	Path            string
	Size            int64
	ModTimeUnixNano int64
	ContentSHA256   string
}

// macroFileSuffix is the filename suffix that marks a macro definition.
const macroFileSuffix = ".macro.json"

var macroArgumentPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.-]+)\s*\}\}`)

// Registry stores macros discovered from macro files.
type Registry struct {
	enabled bool

	mu         sync.RWMutex
	macros     map[string]Macro
	loadErrors []string
}

// NewRegistry creates a registry instance.
func NewRegistry(enabled bool) *Registry {
	return &Registry{
		enabled: enabled,
		macros:  make(map[string]Macro),
	}
}

// Enabled reports whether the macro catalog is enabled.
func (r *Registry) Enabled() bool {
	return r != nil && r.enabled
}

// RegisterMacro inserts or replaces one macro definition.
func (r *Registry) RegisterMacro(macro Macro) {
	if r == nil {
		return
	}

	name := strings.TrimSpace(macro.Name)
	if name == "" {
		return
	}

	macro.Name = name
	macro = normalizeMacro(macro)
	key := macroKey(macro.Name)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.macros[key] = macro
}

// MacroCount returns the number of registered macros.
func (r *Registry) MacroCount() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.macros)
}

// ListMacros returns macro definitions sorted by name.
func (r *Registry) ListMacros() []Macro {
	if r == nil {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Macro, 0, len(r.macros))
	for _, macro := range r.macros {
		out = append(out, macro)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}

// GetMacro returns one macro by name.
func (r *Registry) GetMacro(name string) (Macro, bool) {
	if r == nil {
		return Macro{}, false
	}

	key := macroKey(name)
	if key == "" {
		return Macro{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	macro, ok := r.macros[key]
	return macro, ok
}

// LoadErrors returns non-fatal errors seen during macro discovery.
func (r *Registry) LoadErrors() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.loadErrors))
	copy(out, r.loadErrors)
	return out
}

// LoadFromPaths discovers macro files and registers their definitions.
func (r *Registry) LoadFromPaths(paths []string) error {
	return r.LoadFromPathsWithAllowedRoots(paths, nil)
}

// LoadFromPathsWithAllowedRoots discovers macro files, enforces root policy,
// and registers their definitions. The registered set is swapped atomically;
// readers never observe a half-loaded catalog.
func (r *Registry) LoadFromPathsWithAllowedRoots(paths []string, allowedRoots []string) error {
	if !r.Enabled() {
		return nil
	}

	files, loadErrors := discoverMacroFilesWithPolicy(paths, allowedRoots)
	nextMacros := make(map[string]Macro)

	for _, filePath := range files {
		macro, err := MacroFromFile(filePath)
		if err != nil {
			loadErrors = append(loadErrors, err.Error())
			continue
		}
		key := macroKey(macro.Name)
		if key == "" {
			loadErrors = append(loadErrors, "invalid macro name")
			continue
		}
		if _, ok := nextMacros[key]; ok {
			loadErrors = append(loadErrors, fmt.Sprintf("duplicate macro name %q", macro.Name))
			continue
		}
		nextMacros[key] = normalizeMacro(macro)
	}

	r.mu.Lock()
	r.macros = nextMacros
	r.loadErrors = append([]string(nil), loadErrors...)
	r.mu.Unlock()

	if len(loadErrors) == 0 {
		return nil
	}
	return errors.New(strings.Join(loadErrors, "; "))
}

// CollectMacroFileSnapshots returns deterministic macro file snapshots after
// allow-root filtering.
func CollectMacroFileSnapshots(paths []string, allowedRoots []string) ([]MacroFileSnapshot, []string) {
	files, loadErrors := discoverMacroFilesWithPolicy(paths, allowedRoots)
	snapshots := make([]MacroFileSnapshot, 0, len(files))
	for _, path := range files {
		info, err := os.Stat(path)
		if err != nil {
			loadErrors = append(loadErrors, fmt.Sprintf("stat macro file %s: %v", path, err))
			continue
		}
		contentHash, hashErr := fileSHA256(path)
		if hashErr != nil {
			loadErrors = append(loadErrors, fmt.Sprintf("hash macro file %s: %v", path, hashErr))
		}
		snapshots = append(snapshots, MacroFileSnapshot{
			Path:            canonicalPathForBoundary(path),
			Size:            info.Size(),
			ModTimeUnixNano: info.ModTime().UnixNano(),
			ContentSHA256:   contentHash,
		})
	}

	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].Path < snapshots[j].Path
	})
	return snapshots, loadErrors
}

// SnapshotFingerprint returns a stable JSON digest of the macro file set.
// Two equal fingerprints mean no macro file changed on disk.
func SnapshotFingerprint(paths []string, allowedRoots []string) (string, []string) {
	snapshots, loadErrors := CollectMacroFileSnapshots(paths, allowedRoots)
	data, err := json.Marshal(snapshots)
	if err != nil {
		loadErrors = append(loadErrors, fmt.Sprintf("marshal macro file snapshots: %v", err))
		return "", loadErrors
	}
	return string(data), loadErrors
}

func discoverMacroFilesWithPolicy(paths []string, allowedRoots []string) ([]string, []string) {
	files := make([]string, 0)
	seen := make(map[string]struct{})
	loadErrors := make([]string, 0)

	roots := normalizePolicyRoots(allowedRoots)
	if len(roots) == 0 {
		roots = normalizePolicyRoots(paths)
	}

	for _, rawPath := range paths {
		discovered, discoverErr := discoverMacroFiles(rawPath)
		if discoverErr != nil {
			loadErrors = append(loadErrors, discoverErr.Error())
		}
		for _, filePath := range discovered {
			canonicalFilePath := canonicalPathForBoundary(filePath)
			if len(roots) > 0 && !isPathWithinAllowedRoots(canonicalFilePath, roots) {
				loadErrors = append(loadErrors, fmt.Sprintf("macro file %s is outside macro catalog allowed roots", canonicalFilePath))
				continue
			}
			if _, ok := seen[canonicalFilePath]; ok {
				continue
			}
			seen[canonicalFilePath] = struct{}{}
			files = append(files, canonicalFilePath)
		}
	}

	sort.Strings(files)
	return files, loadErrors
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func discoverMacroFiles(rawPath string) ([]string, error) {
	path := strings.TrimSpace(rawPath)
	if path == "" {
		return nil, nil
	}

	path = expandUser(path)
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat macro path %s: %w", filepath.Clean(path), err)
	}

	results := make([]string, 0)
	if !info.IsDir() {
		if isMacroFileName(filepath.Base(path)) {
			results = append(results, filepath.Clean(path))
		}
		return results, nil
	}

	walkErr := filepath.WalkDir(path, func(current string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		if isMacroFileName(d.Name()) {
			results = append(results, filepath.Clean(current))
		}
		return nil
	})
	if walkErr != nil {
		return results, fmt.Errorf("walk macro path %s: %w", filepath.Clean(path), walkErr)
	}
	return results, nil
}

func isMacroFileName(name string) bool {
	return len(name) > len(macroFileSuffix) &&
		strings.EqualFold(name[len(name)-len(macroFileSuffix):], macroFileSuffix)
}

// MacroFromFile parses one macro definition file.
func MacroFromFile(path string) (Macro, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Macro{}, fmt.Errorf("read macro file %s: %w", path, err)
	}

	var macro Macro
	if err := json.Unmarshal(content, &macro); err != nil {
		return Macro{}, fmt.Errorf("parse macro file %s: %w", path, err)
	}

	if strings.TrimSpace(macro.Name) == "" {
		base := filepath.Base(path)
		if isMacroFileName(base) {
			base = base[:len(base)-len(macroFileSuffix)]
		}
		macro.Name = strings.TrimSpace(base)
	}
	if strings.TrimSpace(macro.Description) == "" {
		macro.Description = fmt.Sprintf("Macro loaded from %s", filepath.Base(path))
	}

	commands := make([]string, 0, len(macro.Commands))
	for _, command := range macro.Commands {
		trimmed := strings.TrimSpace(command)
		if trimmed == "" {
			continue
		}
		commands = append(commands, trimmed)
	}
	if len(commands) == 0 {
		return Macro{}, fmt.Errorf("macro file %s declares no commands", path)
	}
	macro.Commands = commands

	// Placeholders used by the command lines are arguments even when the
	// file never declares them; undeclared ones default to required.
	macro.Arguments = mergeMacroArguments(macro.Arguments, extractMacroArguments(macro.Commands))
	macro.SourcePath = filepath.Clean(path)
	return macro, nil
}

func macroKey(name string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return ""
	}
	return strings.ToLower(trimmed)
}

func normalizeMacro(macro Macro) Macro {
	macro.Name = strings.TrimSpace(macro.Name)
	macro.Title = strings.TrimSpace(macro.Title)
	macro.Description = strings.TrimSpace(macro.Description)
	macro.Arguments = normalizeMacroArguments(macro.Arguments)
	return macro
}

func normalizeMacroArguments(args []MacroArgument) []MacroArgument {
	if len(args) == 0 {
		return nil
	}

	normalized := make([]MacroArgument, 0, len(args))
	seen := make(map[string]struct{}, len(args))
	for _, arg := range args {
		name := strings.TrimSpace(arg.Name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		normalized = append(normalized, MacroArgument{
			Name:     name,
			Required: arg.Required,
		})
	}

	sort.Slice(normalized, func(i, j int) bool {
		return normalized[i].Name < normalized[j].Name
	})
	return normalized
}

func mergeMacroArguments(declared, extracted []MacroArgument) []MacroArgument {
	merged := append([]MacroArgument(nil), declared...)
	have := make(map[string]struct{}, len(declared))
	for _, arg := range declared {
		have[strings.TrimSpace(arg.Name)] = struct{}{}
	}
	for _, arg := range extracted {
		if _, ok := have[arg.Name]; ok {
			continue
		}
		merged = append(merged, arg)
	}
	return normalizeMacroArguments(merged)
}

func extractMacroArguments(commands []string) []MacroArgument {
	args := make([]MacroArgument, 0)
	for _, command := range commands {
		for _, match := range macroArgumentPattern.FindAllStringSubmatch(command, -1) {
			if len(match) < 2 {
				continue
			}
			key := strings.TrimSpace(match[1])
			if key == "" {
				continue
			}
			args = append(args, MacroArgument{Name: key, Required: true})
		}
	}
	return normalizeMacroArguments(args)
}
