/*
Package loader – record mapper.

Converts plain JSON records into DynamoDB attribute values.
*/
package loader

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// MappingFailure reports a record that was left out of an upload.
type MappingFailure struct {
	Index int    // position in the input
	Key   string // partition key value, when it could be read
	Err   error
}

// MapRecord converts every top-level field of rec into its tagged wire value.
// It fails with an ErrMapping error when a value has no DynamoDB representation.
func MapRecord(rec Record) (WireRecord, error) {
	out := make(WireRecord, len(rec))
	for name, v := range rec {
		if name == "" {
			return nil, mappingError("empty attribute name", name, nil)
		}
		av, err := toAV(v, name)
		if err != nil {
			return nil, err
		}
		out[name] = av
	}
	return out, nil
}

// MapRecords maps recs, keeping the ones that map cleanly and carry a non-empty
// string partition key. Records sharing a key collapse into one entry at the
// position of the first, holding the last value, since a single batch request
// may not contain the same key twice.
func MapRecords(recs []Record, key string) (items []WireRecord, failures []MappingFailure) {
	seen := make(map[string]int, len(recs))
	for i, rec := range recs {
		id, ok := rec[key].(string)
		if !ok || id == "" {
			failures = append(failures, MappingFailure{
				Index: i,
				Err:   mappingError(fmt.Sprintf(`missing string partition key "%s"`, key), key, nil),
			})
			continue
		}
		item, err := MapRecord(rec)
		if err != nil {
			failures = append(failures, MappingFailure{Index: i, Key: id, Err: err})
			continue
		}
		if at, dup := seen[id]; dup {
			items[at] = item
			continue
		}
		seen[id] = len(items)
		items = append(items, item)
	}
	return items, failures
}

func toAV(v any, path string) (types.AttributeValue, error) {
	switch tv := v.(type) {
	case nil:
		return &types.AttributeValueMemberNULL{Value: true}, nil
	case string:
		return &types.AttributeValueMemberS{Value: tv}, nil
	case bool:
		return &types.AttributeValueMemberBOOL{Value: tv}, nil
	case json.Number:
		return numberAV(string(tv), path)
	case float64:
		return floatAV(tv, path)
	case float32:
		return floatAV(float64(tv), path)
	case int:
		return &types.AttributeValueMemberN{Value: strconv.Itoa(tv)}, nil
	case int64:
		return &types.AttributeValueMemberN{Value: strconv.FormatInt(tv, 10)}, nil
	case int32:
		return &types.AttributeValueMemberN{Value: strconv.FormatInt(int64(tv), 10)}, nil
	case uint64:
		return &types.AttributeValueMemberN{Value: strconv.FormatUint(tv, 10)}, nil
	case []byte:
		return &types.AttributeValueMemberB{Value: tv}, nil
	case []any:
		list := make([]types.AttributeValue, len(tv))
		for i, el := range tv {
			av, err := toAV(el, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			list[i] = av
		}
		return &types.AttributeValueMemberL{Value: list}, nil
	case map[string]any:
		return mapAV(tv, path)
	case Record:
		return mapAV(tv, path)
	default:
		// anything else goes through the SDK encoder, which skips channels and
		// funcs by returning a nil value
		av, err := attributevalue.Marshal(tv)
		if err != nil || av == nil {
			return nil, mappingError(fmt.Sprintf("unsupported value of type %T", v), path, err)
		}
		return av, nil
	}
}

func mapAV(m map[string]any, path string) (types.AttributeValue, error) {
	out := make(map[string]types.AttributeValue, len(m))
	for k, el := range m {
		av, err := toAV(el, path+"."+k)
		if err != nil {
			return nil, err
		}
		out[k] = av
	}
	return &types.AttributeValueMemberM{Value: out}, nil
}

func floatAV(f float64, path string) (types.AttributeValue, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, mappingError(fmt.Sprintf("number %v is not representable", f), path, nil)
	}
	return numberAV(strconv.FormatFloat(f, 'g', -1, 64), path)
}

// DynamoDB number limits: 38 significant digits, magnitude between 1E-130
// and 9.9999999999999999999999999999999999999E+125.
const (
	maxNumberDigits   = 38
	minNumberExponent = -130
	maxNumberExponent = 125
)

var numberRE = regexp.MustCompile(`^-?([0-9]+)(?:\.([0-9]+))?(?:[eE]([+-]?[0-9]+))?$`)

// numberAV checks s against the decimal form DynamoDB stores. NaN, Infinity
// and values outside its precision or exponent range are rejected.
func numberAV(s, path string) (types.AttributeValue, error) {
	m := numberRE.FindStringSubmatch(s)
	if m == nil {
		return nil, mappingError(fmt.Sprintf("invalid number %q", s), path, nil)
	}
	digits := m[1] + m[2]
	sig := strings.TrimLeft(digits, "0")
	if sig == "" {
		return &types.AttributeValueMemberN{Value: s}, nil
	}
	exp := 0
	if m[3] != "" {
		var err error
		if exp, err = strconv.Atoi(m[3]); err != nil {
			return nil, mappingError(fmt.Sprintf("number %s is out of range", s), path, err)
		}
	}
	// exponent of the most significant digit
	adjusted := len(m[1]) - 1 - (len(digits) - len(sig)) + exp
	if adjusted < minNumberExponent || adjusted > maxNumberExponent {
		return nil, mappingError(fmt.Sprintf("number %s is out of range", s), path, nil)
	}
	if n := len(strings.TrimRight(sig, "0")); n > maxNumberDigits {
		return nil, mappingError(fmt.Sprintf("number %s has %d significant digits, at most %d are kept", s, n, maxNumberDigits), path, nil)
	}
	return &types.AttributeValueMemberN{Value: s}, nil
}

func mappingError(msg, field string, cause error) *LoaderError {
	return NewError(msg, WithCode(ErrMapping), WithCause(cause), WithContext(map[string]any{"field": field}))
}
