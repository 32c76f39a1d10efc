package graph

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/Aman-CERP/ragcrawl/internal/chunk"
)

// RepoIngester shallow-clones a repository and walks its source files into
// the graph store, per spec.md §4.8's "Repository ingest into graph" step.
type RepoIngester struct {
	store    *Store
	parser   *chunk.Parser
	registry *chunk.LanguageRegistry
	extractor *chunk.SymbolExtractor
}

func NewRepoIngester(store *Store) *RepoIngester {
	registry := chunk.DefaultRegistry()
	return &RepoIngester{
		store:     store,
		parser:    chunk.NewParserWithRegistry(registry),
		registry:  registry,
		extractor: chunk.NewSymbolExtractorWithRegistry(registry),
	}
}

// IngestRepository clones repoURL into a temporary directory (depth 1),
// parses every supported source file, and upserts the resulting nodes and
// edges into the graph store. Returns the repository's unique name
// (owner/repo-style, derived from the URL) and a count of files processed.
func (r *RepoIngester) IngestRepository(ctx context.Context, repoURL string) (repoName string, filesProcessed int, err error) {
	repoName = deriveRepoName(repoURL)

	tmpDir, err := os.MkdirTemp("", "ragcrawl-repo-*")
	if err != nil {
		return repoName, 0, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	cmd := exec.CommandContext(ctx, "git", "clone", "--depth", "1", repoURL, tmpDir)
	if out, err := cmd.CombinedOutput(); err != nil {
		return repoName, 0, fmt.Errorf("git clone %s: %w: %s", repoURL, err, strings.TrimSpace(string(out)))
	}

	repoNode := &Node{ID: nodeID("repo", repoName), Label: LabelRepository, Name: repoName}
	r.store.UpsertNode(repoNode)

	err = filepath.WalkDir(tmpDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil // skip unreadable entries, don't abort the whole walk
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}

		ext := filepath.Ext(path)
		config, ok := r.registry.GetByExtension(ext)
		if !ok {
			return nil
		}

		rel, relErr := filepath.Rel(tmpDir, path)
		if relErr != nil {
			rel = path
		}

		if procErr := r.ingestFile(ctx, repoNode, rel, path, config.Name); procErr != nil {
			return nil // one bad file doesn't abort the repository ingest
		}
		filesProcessed++
		return nil
	})
	if err != nil {
		return repoName, filesProcessed, fmt.Errorf("walk repository: %w", err)
	}

	return repoName, filesProcessed, nil
}

func (r *RepoIngester) ingestFile(ctx context.Context, repoNode *Node, relPath, absPath, language string) error {
	source, err := os.ReadFile(absPath)
	if err != nil {
		return err
	}

	tree, err := r.parser.Parse(ctx, source, language)
	if err != nil {
		return err
	}

	fileNode := &Node{ID: nodeID("file", repoNode.Name, relPath), Label: LabelFile, Name: relPath}
	r.store.UpsertNode(fileNode)
	r.store.AddEdge(&Edge{FromID: repoNode.ID, ToID: fileNode.ID, Type: EdgeContains})

	symbols := r.extractor.Extract(tree, source)

	// currentClass tracks which class a method/attribute belongs to.
	// Nesting depth isn't available from a flat symbol list, so methods and
	// attributes attach to the nearest preceding class symbol in source
	// order — an approximation that matches typical one-class-per-region
	// source layout.
	var currentClass *Node

	for _, sym := range symbols {
		switch sym.Type {
		case chunk.SymbolTypeClass:
			n := &Node{
				ID:    nodeID("class", repoNode.Name, relPath, sym.Name),
				Label: LabelClass,
				Name:  sym.Name,
				Properties: map[string]string{
					"signature": sym.Signature,
					"file":      relPath,
				},
			}
			r.store.UpsertNode(n)
			r.store.AddEdge(&Edge{FromID: fileNode.ID, ToID: n.ID, Type: EdgeDefines})
			currentClass = n

		case chunk.SymbolTypeFunction:
			n := &Node{
				ID:    nodeID("func", repoNode.Name, relPath, sym.Name, sym.StartLine),
				Label: LabelFunction,
				Name:  sym.Name,
				Properties: map[string]string{
					"signature": sym.Signature,
					"file":      relPath,
				},
			}
			r.store.UpsertNode(n)
			r.store.AddEdge(&Edge{FromID: fileNode.ID, ToID: n.ID, Type: EdgeDefines})
			r.addParameterNodes(n, sym.Signature)

		case chunk.SymbolTypeMethod:
			n := &Node{
				ID:    nodeID("method", repoNode.Name, relPath, sym.Name, sym.StartLine),
				Label: LabelMethod,
				Name:  sym.Name,
				Properties: map[string]string{
					"signature": sym.Signature,
					"file":      relPath,
				},
			}
			r.store.UpsertNode(n)
			if currentClass != nil {
				r.store.AddEdge(&Edge{FromID: currentClass.ID, ToID: n.ID, Type: EdgeHasMethod})
			} else {
				r.store.AddEdge(&Edge{FromID: fileNode.ID, ToID: n.ID, Type: EdgeDefines})
			}
			r.addParameterNodes(n, sym.Signature)

		case chunk.SymbolTypeVariable, chunk.SymbolTypeConstant:
			if currentClass == nil {
				continue
			}
			n := &Node{
				ID:    nodeID("attr", repoNode.Name, relPath, currentClass.Name, sym.Name),
				Label: LabelAttribute,
				Name:  sym.Name,
			}
			r.store.UpsertNode(n)
			r.store.AddEdge(&Edge{FromID: currentClass.ID, ToID: n.ID, Type: EdgeHasAttribute})
		}
	}

	return nil
}

var paramSplitPattern = regexp.MustCompile(`\(([^)]*)\)`)

// addParameterNodes does a best-effort parse of a function/method
// signature's parameter list, splitting on commas at depth 0. Good enough
// for the structural check's "parameter set disagrees" comparison; not a
// full type-aware parse.
func (r *RepoIngester) addParameterNodes(owner *Node, signature string) {
	m := paramSplitPattern.FindStringSubmatch(signature)
	if len(m) < 2 || strings.TrimSpace(m[1]) == "" {
		return
	}

	params := splitTopLevel(m[1])
	for i, p := range params {
		name := strings.TrimSpace(p)
		if name == "" {
			continue
		}
		n := &Node{
			ID:    nodeID("param", owner.ID, fmt.Sprint(i)),
			Label: LabelParameter,
			Name:  name,
		}
		r.store.UpsertNode(n)
		r.store.AddEdge(&Edge{FromID: owner.ID, ToID: n.ID, Type: EdgeHasParam})
	}
}

// splitTopLevel splits a parameter list on commas that aren't nested inside
// another pair of parens or brackets (e.g. generic type params).
func splitTopLevel(s string) []string {
	var out []string
	depth := 0
	start := 0
	for i, r := range s {
		switch r {
		case '(', '[', '<', '{':
			depth++
		case ')', ']', '>', '}':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	out = append(out, s[start:])
	return out
}

func deriveRepoName(repoURL string) string {
	trimmed := strings.TrimSuffix(strings.TrimSuffix(repoURL, "/"), ".git")
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 {
		return trimmed
	}
	parts := strings.Split(trimmed, "/")
	if len(parts) >= 2 {
		return parts[len(parts)-2] + "/" + parts[len(parts)-1]
	}
	return trimmed[idx+1:]
}

func nodeID(parts ...any) string {
	var sb strings.Builder
	for _, p := range parts {
		fmt.Fprintf(&sb, "%v#", p)
	}
	h := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(h[:])[:20]
}
