/*
Package loader – record and table schema types.
*/
package loader

import (
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	// DefaultPartitionKey is the recall identifier field of the recalls API.
	DefaultPartitionKey = "recallId"

	// DefaultCapacity is the provisioned read/write capacity used on table creation.
	DefaultCapacity int64 = 1
)

// Record is one recall entry as decoded from JSON. Values are the usual
// encoding/json shapes: string, json.Number or float64, bool, nil,
// []any and map[string]any.
type Record map[string]any

// WireRecord is a Record in DynamoDB attribute-value form.
type WireRecord = map[string]types.AttributeValue

// TableSpec describes the target table. Only Name is needed to upload; Key and
// the capacities are used when the table has to be created.
type TableSpec struct {
	Name          string `yaml:"name" json:"name"`
	Key           string `yaml:"key" json:"key"`
	ReadCapacity  int64  `yaml:"read_capacity" json:"readCapacity,omitempty"`
	WriteCapacity int64  `yaml:"write_capacity" json:"writeCapacity,omitempty"`
}

func (s TableSpec) withDefaults() TableSpec {
	if s.Key == "" {
		s.Key = DefaultPartitionKey
	}
	if s.ReadCapacity <= 0 {
		s.ReadCapacity = DefaultCapacity
	}
	if s.WriteCapacity <= 0 {
		s.WriteCapacity = DefaultCapacity
	}
	return s
}
