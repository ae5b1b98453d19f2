package versions

// Listed is a log entry with the snapshot of the entry before it, the
// baseline to show what the version changed.
type Listed struct {
	Index   int
	Version Version
	Prev    []byte
}

// List pairs every entry with the raw snapshot of its predecessor; the
// first entry has a nil Prev.
func List(l *Log) ([]Listed, error) {
	all, err := l.All()
	if err != nil {
		return nil, err
	}
	ret := make([]Listed, len(all))
	var prev []byte
	for i, v := range all {
		ret[i] = Listed{Index: i, Version: v, Prev: prev}
		prev = v.Snapshot
	}
	return ret, nil
}
