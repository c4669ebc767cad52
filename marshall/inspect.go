package marshall

// Report summarizes the envelopes found in a payload.
type Report struct {
	// Objects is the number of object envelopes.
	Objects int

	// Enums is the number of enum envelopes.
	Enums int

	// CodecEnvelopes is the number of codec envelopes.
	CodecEnvelopes int

	// Types counts the occurrences of each type name.
	Types map[string]int

	// Codecs counts the occurrences of each codec name.
	Codecs map[string]int
}

// Inspect walks a payload and reports the envelopes it contains. The walk
// is purely syntactic: nothing is resolved or reconstructed, so it works
// without any registration.
func Inspect(data []byte) (Report, error) {
	report := Report{
		Types:  make(map[string]int),
		Codecs: make(map[string]int),
	}

	node, err := parse(data)
	if err != nil {
		return report, err
	}

	inspect(node, &report)

	return report, nil
}

func inspect(node interface{}, report *Report) {
	switch tree := node.(type) {
	case map[string]interface{}:
		_, hasName := tree[KeyMemberName]
		_, hasValue := tree[KeyMemberValue]
		fqn, hasFQN := tree[KeyFQN].(string)
		codec, hasCodec := tree[KeyCodec].(string)

		switch {
		case hasName && hasValue:
			report.Enums++
			if hasFQN {
				report.Types[fqn]++
			}
		case hasFQN:
			report.Objects++
			report.Types[fqn]++
		case hasCodec:
			report.CodecEnvelopes++
			report.Codecs[codec]++
		}

		for _, item := range tree {
			inspect(item, report)
		}

	case []interface{}:
		for _, item := range tree {
			inspect(item, report)
		}
	}
}
