package album

// MaxGroupSize is the platform ceiling for items in one album.
const MaxGroupSize = 10

// Partition splits an ordered item sequence into deliverable batches.
//
// Items are separated, preserving relative order, into groupable kinds
// (chunked into runs of at most size) and singular kinds (one batch each).
// Groupable batches come first, matching the send ordering the destination
// expects: albums first, individually-sent kinds after.
func Partition(items []MediaItem, size int) []Batch {
	if size <= 0 || size > MaxGroupSize {
		size = MaxGroupSize
	}

	var groupable, singular []MediaItem
	for _, it := range items {
		if it.Kind.Groupable() {
			groupable = append(groupable, it)
		} else {
			singular = append(singular, it)
		}
	}

	batches := make([]Batch, 0, (len(groupable)+size-1)/size+len(singular))
	for start := 0; start < len(groupable); start += size {
		end := start + size
		if end > len(groupable) {
			end = len(groupable)
		}
		batches = append(batches, Batch{Items: groupable[start:end:end]})
	}
	for _, it := range singular {
		batches = append(batches, Batch{Items: []MediaItem{it}})
	}
	return batches
}
