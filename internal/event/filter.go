package event

import "reflect"

// FilterBySource only allows events from the given source.
func FilterBySource(source string) FilterFunc {
	return func(ev Event) bool {
		return ev.Source == source
	}
}

// FilterBySources only allows events from one of the given sources.
func FilterBySources(sources ...string) FilterFunc {
	allowed := make(map[string]struct{}, len(sources))
	for _, s := range sources {
		allowed[s] = struct{}{}
	}
	return func(ev Event) bool {
		_, ok := allowed[ev.Source]
		return ok
	}
}

// FilterExcludeSource drops events from the given source.
// Apps use it to ignore their own broadcasts.
func FilterExcludeSource(source string) FilterFunc {
	return func(ev Event) bool {
		return ev.Source != source
	}
}

// FilterByMetadata only allows events whose metadata key equals value.
func FilterByMetadata(key string, value any) FilterFunc {
	return func(ev Event) bool {
		v, ok := ev.Metadata[key]
		if !ok {
			return false
		}
		return reflect.DeepEqual(v, value)
	}
}

// FilterHasMetadata only allows events that carry the metadata key.
func FilterHasMetadata(key string) FilterFunc {
	return func(ev Event) bool {
		_, ok := ev.Metadata[key]
		return ok
	}
}

// FilterPayload creates a filter based on a payload of type T.
// Events with a payload of another type are rejected.
func FilterPayload[T any](predicate func(payload T) bool) FilterFunc {
	return func(ev Event) bool {
		payload, ok := ev.Payload.(T)
		if !ok {
			return false
		}
		return predicate(payload)
	}
}

// FilterAnd combines multiple filters with AND logic.
func FilterAnd(filters ...FilterFunc) FilterFunc {
	return func(ev Event) bool {
		for _, f := range filters {
			if !f(ev) {
				return false
			}
		}
		return true
	}
}

// FilterOr combines multiple filters with OR logic.
func FilterOr(filters ...FilterFunc) FilterFunc {
	return func(ev Event) bool {
		for _, f := range filters {
			if f(ev) {
				return true
			}
		}
		return false
	}
}

// FilterNot negates a filter.
func FilterNot(filter FilterFunc) FilterFunc {
	return func(ev Event) bool {
		return !filter(ev)
	}
}
