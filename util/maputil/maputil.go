package maputil

// ReadEmbeddedMap reads a map embedded within a map.
func ReadEmbeddedMap(m map[string]interface{}, k string) (map[string]interface{}, bool) {
	if v, ok := m[k]; ok {
		vCasted, okCasted := v.(map[string]interface{})
		return vCasted, okCasted
	}
	return nil, false
}

// HasElement reports whether the path of keys exists within m.
func HasElement(m map[string]interface{}, keys ...string) bool {
	for i, k := range keys {
		if i == len(keys)-1 {
			_, ok := m[k]
			return ok
		}

		var ok bool
		if m, ok = ReadEmbeddedMap(m, k); !ok {
			return false
		}
	}
	return false
}

// Clone returns a shallow copy of the map. A nil map stays nil.
func Clone[K comparable, V any](m map[K]V) map[K]V {
	if m == nil {
		return nil
	}

	c := make(map[K]V, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}
