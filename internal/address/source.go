package address

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// LoadMapping reads a street → number → reference mapping from a JSON or
// YAML file, chosen by extension. Numeric references are kept as their
// literal text; null references are skipped.
func LoadMapping(path string) (Mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "address: read %s", path)
	}

	var raw map[string]map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, eris.Wrapf(err, "address: parse yaml %s", path)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&raw); err != nil {
			return nil, eris.Wrapf(err, "address: parse json %s", path)
		}
	}

	m := make(Mapping, len(raw))
	for street, nums := range raw {
		refs := make(map[string]string, len(nums))
		for num, v := range nums {
			ref, ok, err := referenceText(v)
			if err != nil {
				return nil, eris.Wrapf(err, "address: %s %s", street, num)
			}
			if ok {
				refs[num] = ref
			}
		}
		m[street] = refs
	}
	return m, nil
}

func referenceText(v any) (string, bool, error) {
	switch r := v.(type) {
	case nil:
		return "", false, nil
	case string:
		return r, true, nil
	case json.Number:
		return r.String(), true, nil
	case int, int64, uint64, float64:
		return fmt.Sprint(r), true, nil
	default:
		return "", false, eris.Errorf("unsupported reference type %T", v)
	}
}
