package work

import "time"

// Index is the generated knowledge index: for every anchor directory, the
// entries anchored there with a one-line summary.
type Index struct {
	Generated time.Time               `toml:"generated" json:"generated"`
	Dirs      map[string][]IndexEntry `toml:"dirs" json:"dirs"`
}

// IndexEntry is one entry listed under an anchor directory.
type IndexEntry struct {
	ID      string `toml:"id" json:"id"`
	Summary string `toml:"summary" json:"summary"`
}
