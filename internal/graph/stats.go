package graph

// Stats summarizes one parse pass over a file set. Per-worker Stats are
// combined with Merge after a parallel build.
type Stats struct {
	FilesFound   int
	FilesParsed  int
	FilesFailed  int
	FilesSkipped int

	TotalNodes int
	TotalEdges int

	NodesPerLanguage map[string]int

	// Errors holds rendered per-file parse errors, in encounter order.
	Errors []string
}

// NewStats returns an empty Stats.
func NewStats() *Stats {
	return &Stats{NodesPerLanguage: make(map[string]int)}
}

// Merge folds other into s.
func (s *Stats) Merge(other *Stats) {
	s.FilesFound += other.FilesFound
	s.FilesParsed += other.FilesParsed
	s.FilesFailed += other.FilesFailed
	s.FilesSkipped += other.FilesSkipped
	s.TotalNodes += other.TotalNodes
	s.TotalEdges += other.TotalEdges
	for lang, n := range other.NodesPerLanguage {
		s.NodesPerLanguage[lang] += n
	}
	s.Errors = append(s.Errors, other.Errors...)
}
