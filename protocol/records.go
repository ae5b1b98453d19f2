package protocol

// Records is a batch of op packets, the unit a Feeder produces and a
// Drainer consumes.
type Records [][]byte

func (recs Records) TotalLen() (total int64) {
	for _, r := range recs {
		total += int64(len(r))
	}
	return
}
