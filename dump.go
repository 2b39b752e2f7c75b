/*
Package loader – dry-run request dumps.
*/
package loader

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DebugFileName returns the dry-run artifact name for a category.
func DebugFileName(category string) string {
	return fmt.Sprintf("%s-DEBUG.json", category)
}

// writeDebugArtifact writes the BatchWriteItem request(s) for batches into
// dir/{category}-DEBUG.json. A single request is written as one object, a
// multi-request partition as a list of them.
func writeDebugArtifact(dir, category, table string, batches Batches[WireRecord]) (string, error) {
	var doc any
	if batches.Single() {
		doc = requestJSON(table, batches[0])
	} else {
		reqs := make([]any, len(batches))
		for i, chunk := range batches {
			reqs[i] = requestJSON(table, chunk)
		}
		doc = reqs
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", err
	}
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", err
		}
	}
	path := filepath.Join(dir, DebugFileName(category))
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// requestJSON renders a BatchWriteItem request in DynamoDB JSON, the shape the
// AWS CLI accepts with --request-items.
func requestJSON(table string, items []WireRecord) map[string]any {
	puts := make([]any, len(items))
	for i, item := range items {
		puts[i] = map[string]any{"PutRequest": map[string]any{"Item": itemJSON(item)}}
	}
	return map[string]any{"RequestItems": map[string]any{table: puts}}
}

func itemJSON(item map[string]types.AttributeValue) map[string]any {
	out := make(map[string]any, len(item))
	for k, av := range item {
		out[k] = avJSON(av)
	}
	return out
}

func avJSON(av types.AttributeValue) any {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return map[string]any{"S": v.Value}
	case *types.AttributeValueMemberN:
		return map[string]any{"N": v.Value}
	case *types.AttributeValueMemberBOOL:
		return map[string]any{"BOOL": v.Value}
	case *types.AttributeValueMemberNULL:
		return map[string]any{"NULL": v.Value}
	case *types.AttributeValueMemberB:
		return map[string]any{"B": v.Value}
	case *types.AttributeValueMemberSS:
		return map[string]any{"SS": v.Value}
	case *types.AttributeValueMemberNS:
		return map[string]any{"NS": v.Value}
	case *types.AttributeValueMemberBS:
		return map[string]any{"BS": v.Value}
	case *types.AttributeValueMemberL:
		list := make([]any, len(v.Value))
		for i, el := range v.Value {
			list[i] = avJSON(el)
		}
		return map[string]any{"L": list}
	case *types.AttributeValueMemberM:
		return map[string]any{"M": itemJSON(v.Value)}
	default:
		return nil
	}
}
